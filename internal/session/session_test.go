package session

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.AddCookie(&http.Cookie{Name: "vault_session", Value: "local-token"})
	s, err := FromRequest(req, "vault_session")
	require.NoError(t, err)
	assert.Equal(t, ProviderSession{Token: "abc"}, s)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "vault_session", Value: "local-token"})
	s, err = FromRequest(req, "vault_session")
	require.NoError(t, err)
	assert.Equal(t, LocalSession{Token: "local-token"}, s)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	_, err = FromRequest(req, "vault_session")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), "vault_session")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLocalIssuerRoundTrip(t *testing.T) {
	issuer, err := NewLocalIssuer("secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue(Principal{UserID: "google:1", Email: "a@example.com"})
	require.NoError(t, err)

	p, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "google:1", p.UserID)
	assert.Equal(t, "a@example.com", p.Email)
	assert.Equal(t, SchemeLocal, p.Scheme)
}

func TestLocalIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer, err := NewLocalIssuer("secret", time.Minute)
	require.NoError(t, err)
	other, err := NewLocalIssuer("other", time.Minute)
	require.NoError(t, err)

	token, err := other.Issue(Principal{UserID: "u1"})
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	token, err = issuer.Issue(Principal{UserID: "u1"})
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

type countingVerifier struct {
	calls int
	err   error
}

func (v *countingVerifier) Verify(_ context.Context, token string) (Principal, error) {
	v.calls++
	if v.err != nil {
		return Principal{}, v.err
	}
	return Principal{UserID: "sub-" + token, Scheme: SchemeProvider}, nil
}

func TestResolverDispatchesAndCaches(t *testing.T) {
	verifier := &countingVerifier{}
	issuer, err := NewLocalIssuer("secret", time.Hour)
	require.NoError(t, err)
	r := NewResolver(verifier, issuer, 16, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := r.Resolve(context.Background(), ProviderSession{Token: "t1"})
		require.NoError(t, err)
		assert.Equal(t, "sub-t1", p.UserID)
	}
	assert.Equal(t, 1, verifier.calls)

	token, err := issuer.Issue(Principal{UserID: "u1"})
	require.NoError(t, err)
	p, err := r.Resolve(context.Background(), LocalSession{Token: token})
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestResolverDoesNotCacheFailures(t *testing.T) {
	verifier := &countingVerifier{err: ErrUnauthenticated}
	r := NewResolver(verifier, nil, 16, time.Minute)

	_, err := r.Resolve(context.Background(), ProviderSession{Token: "bad"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = r.Resolve(context.Background(), ProviderSession{Token: "bad"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 2, verifier.calls)

	_, err = r.Resolve(context.Background(), LocalSession{Token: "x"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestOIDCVerifierWithStaticKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	const issuerURL = "https://idp.example.com"
	v := NewStaticOIDCVerifier(issuerURL, "vault-web", &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}})

	claims := jwt.MapClaims{
		"iss":   issuerURL,
		"aud":   "vault-web",
		"sub":   "idp|42",
		"email": "user@example.com",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "idp|42", p.UserID)
	assert.Equal(t, "user@example.com", p.Email)
	assert.Equal(t, SchemeProvider, p.Scheme)

	claims["aud"] = "someone-else"
	signed, err = jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
