package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenVerifier validates identity-provider tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// Resolver maps a Session to a Principal.
type Resolver struct {
	provider TokenVerifier
	local    *LocalIssuer
	cache    *expirable.LRU[string, Principal]
}

// NewResolver builds a resolver. Either scheme may be nil, in which case
// sessions of that scheme are rejected. cacheTTL <= 0 disables the provider
// token cache.
func NewResolver(provider TokenVerifier, local *LocalIssuer, cacheSize int, cacheTTL time.Duration) *Resolver {
	r := &Resolver{provider: provider, local: local}
	if cacheTTL > 0 && cacheSize > 0 {
		r.cache = expirable.NewLRU[string, Principal](cacheSize, nil, cacheTTL)
	}
	return r
}

// Resolve authenticates s.
func (r *Resolver) Resolve(ctx context.Context, s Session) (Principal, error) {
	switch sess := s.(type) {
	case ProviderSession:
		return r.resolveProvider(ctx, sess.Token)
	case LocalSession:
		if r.local == nil {
			return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrNotConfigured)
		}
		return r.local.Verify(sess.Token)
	default:
		return Principal{}, ErrUnauthenticated
	}
}

func (r *Resolver) resolveProvider(ctx context.Context, token string) (Principal, error) {
	if r.provider == nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrNotConfigured)
	}
	key := tokenKey(token)
	if r.cache != nil {
		if p, ok := r.cache.Get(key); ok {
			return p, nil
		}
	}
	p, err := r.provider.Verify(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if r.cache != nil {
		r.cache.Add(key, p)
	}
	return p, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
