package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const localIssuerName = "cloudvault"

type localClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// LocalIssuer signs and verifies HS256 local session tokens.
type LocalIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLocalIssuer returns an issuer. An empty secret is rejected.
func NewLocalIssuer(secret string, ttl time.Duration) (*LocalIssuer, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LocalIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (i *LocalIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for p.
func (i *LocalIssuer) Issue(p Principal) (string, error) {
	if p.UserID == "" {
		return "", errors.New("user id is required")
	}
	now := i.now().UTC()
	claims := localClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    localIssuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Email:   p.Email,
		Name:    p.Name,
		Picture: p.Picture,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Verify parses a local token and returns its principal.
func (i *LocalIssuer) Verify(token string) (Principal, error) {
	claims := &localClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return Principal{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
		Scheme:  SchemeLocal,
	}, nil
}
