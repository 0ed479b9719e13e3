package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/shared/server/middleware"
)

func TestRateLimitGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/files/retrieve", GroupDownload},
		{http.MethodPost, "/api/v1/files/upload", GroupUpload},
		{http.MethodPut, "/api/v1/files/abc/content", GroupUpload},
		{http.MethodPost, "/api/v1/billing/webhook", GroupWebhook},
		{http.MethodGet, "/api/v1/files", GroupDefault},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(tc.method, tc.path, nil)
		if got := rateLimitGroup(c); got != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestMetricsAndHealthArePublic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterDeps{RateLimiter: middleware.NewRateLimiter(nil)})

	for _, path := range []string{"/metrics", "/api/v1/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me: expected 401, got %d", w.Code)
	}
}

func TestAddr(t *testing.T) {
	for in, want := range map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"} {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
