package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/session"
)

type stubResolver struct {
	principal session.Principal
	err       error
	seen      session.Session
}

func (s *stubResolver) Resolve(_ context.Context, sess session.Session) (session.Principal, error) {
	s.seen = sess
	return s.principal, s.err
}

func newAuthRouter(res PrincipalResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(AuthConfig{
		Resolver:       res,
		CookieName:     "vault_session",
		PublicPrefixes: []string{"/api/v1/billing/webhook"},
	}))
	router.GET("/api/v1/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserIDFromContext(c)})
	})
	router.POST("/api/v1/billing/webhook", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	router := newAuthRouter(&stubResolver{})
	router.OPTIONS("/api/v1/files", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/files", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthRejectsMissingSession(t *testing.T) {
	router := newAuthRouter(&stubResolver{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthRejectsResolverFailure(t *testing.T) {
	router := newAuthRouter(&stubResolver{err: session.ErrUnauthenticated})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer expired")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthResolvesCookieSession(t *testing.T) {
	res := &stubResolver{principal: session.Principal{UserID: "u1", Scheme: session.SchemeLocal}}
	router := newAuthRouter(res)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: "vault_session", Value: "tok"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if _, ok := res.seen.(session.LocalSession); !ok {
		t.Fatalf("expected local session, got %T", res.seen)
	}
	if got := resp.Body.String(); got != `{"userId":"u1"}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestAuthSkipsPublicPrefixes(t *testing.T) {
	router := newAuthRouter(&stubResolver{err: session.ErrUnauthenticated})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
