package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/session"
	"cloudvault-backend/internal/shared/server/respond"
	"cloudvault-backend/internal/shared/telemetry"
)

const (
	userIDKey    = "userId"
	principalKey = "principal"
)

// PrincipalResolver authenticates an extracted session.
type PrincipalResolver interface {
	Resolve(ctx context.Context, s session.Session) (session.Principal, error)
}

// AuthConfig configures Auth.
type AuthConfig struct {
	Resolver   PrincipalResolver
	CookieName string
	// PublicPrefixes are path prefixes served without a session.
	PublicPrefixes []string
}

// Auth resolves the request session into a principal and stores it in context.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range cfg.PublicPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		sess, err := session.FromRequest(c.Request, cfg.CookieName)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid session", nil)
			return
		}
		if cfg.Resolver == nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid session", nil)
			return
		}

		principal, err := cfg.Resolver.Resolve(c.Request.Context(), sess)
		if err != nil {
			if !errors.Is(err, session.ErrUnauthenticated) {
				telemetry.Warn("auth.resolve_failed", map[string]any{
					"request_id": RequestIDFromContext(c),
					"scheme":     string(sess.Scheme()),
					"err":        err,
				})
			}
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid session", nil)
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// SetPrincipal stores p in the gin context.
func SetPrincipal(c *gin.Context, p session.Principal) {
	c.Set(principalKey, p)
	c.Set(userIDKey, p.UserID)
}

// PrincipalFromContext returns the principal set by Auth.
func PrincipalFromContext(c *gin.Context) (session.Principal, bool) {
	if c == nil {
		return session.Principal{}, false
	}
	val, ok := c.Get(principalKey)
	if !ok {
		return session.Principal{}, false
	}
	p, ok := val.(session.Principal)
	return p, ok && p.UserID != ""
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
