// Package session turns request credentials into an authenticated principal.
//
// Two schemes are accepted. A provider session is an identity-provider ID
// token sent as "Authorization: Bearer <token>". A local session is a token
// this service issued itself (after Google login) carried in a cookie. Both
// are resolved once, at request entry, into a Principal.
package session

import (
	"errors"
	"net/http"
	"strings"
)

// Scheme names how a principal was authenticated.
type Scheme string

const (
	SchemeProvider Scheme = "provider"
	SchemeLocal    Scheme = "local"
)

var (
	// ErrUnauthenticated covers missing, malformed, expired and unverifiable credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotConfigured   = errors.New("session scheme not configured")
)

// Session is either a ProviderSession or a LocalSession.
type Session interface {
	Scheme() Scheme
}

// ProviderSession carries a raw identity-provider token.
type ProviderSession struct {
	Token string
}

func (ProviderSession) Scheme() Scheme { return SchemeProvider }

// LocalSession carries a locally issued session token.
type LocalSession struct {
	Token string
}

func (LocalSession) Scheme() Scheme { return SchemeLocal }

// Principal is the authenticated caller every downstream component sees.
type Principal struct {
	UserID  string
	Email   string
	Name    string
	Picture string
	Scheme  Scheme
}

// FromRequest extracts the session from a request. A bearer header wins over
// the cookie. It returns ErrUnauthenticated when neither is present or the
// Authorization header is not a bearer token.
func FromRequest(r *http.Request, cookieName string) (Session, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return nil, ErrUnauthenticated
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, ErrUnauthenticated
		}
		return ProviderSession{Token: token}, nil
	}
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			return LocalSession{Token: strings.TrimSpace(cookie.Value)}, nil
		}
	}
	return nil, ErrUnauthenticated
}
