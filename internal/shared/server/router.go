package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	googleauth "cloudvault-backend/internal/auth"
	"cloudvault-backend/internal/billing"
	"cloudvault-backend/internal/files"
	"cloudvault-backend/internal/services/health"
	"cloudvault-backend/internal/shared/config"
	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/server/middleware"
	"cloudvault-backend/internal/shared/server/respond"
)

const apiPrefix = "/api/v1"

// Rate limit groups.
const (
	GroupDefault  = "DEFAULT"
	GroupUpload   = "UPLOAD"
	GroupDownload = "DOWNLOAD"
	GroupWebhook  = "WEBHOOK"
)

// DefaultRateLimits are the per-principal budgets for each group.
var DefaultRateLimits = map[string]middleware.RateLimitRule{
	GroupDefault:  {Rate: 20, Burst: 40},
	GroupUpload:   {Rate: 2, Burst: 10},
	GroupDownload: {Rate: 10, Burst: 30},
	GroupWebhook:  {Rate: 50, Burst: 100},
}

// RouterDeps holds everything the router mounts. Nil handlers are skipped.
type RouterDeps struct {
	Config      config.Config
	Resolver    middleware.PrincipalResolver
	Health      *health.Service
	Files       *files.Handler
	Billing     *billing.Handler
	GoogleAuth  *googleauth.GoogleService
	RateLimits  map[string]middleware.RateLimitRule
	RateLimiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	rules := deps.RateLimits
	if rules == nil {
		rules = DefaultRateLimits
	}
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(middleware.AuthConfig{
			Resolver:   deps.Resolver,
			CookieName: deps.Config.SessionCookie,
			PublicPrefixes: []string{
				apiPrefix + "/health",
				apiPrefix + "/billing/webhook",
				apiPrefix + "/auth/google",
				"/metrics",
			},
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rules,
			DefaultGroup: GroupDefault,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group(apiPrefix)
	api.GET("/health", func(c *gin.Context) {
		body, ok := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, body)
	})
	registerMeRoutes(api)
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.Files != nil {
		deps.Files.RegisterRoutes(api)
	}
	if deps.Billing != nil {
		deps.Billing.RegisterRoutes(api)
		deps.Billing.RegisterWebhook(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	path := c.Request.URL.Path
	switch {
	case path == apiPrefix+"/files/retrieve":
		return GroupDownload
	case path == apiPrefix+"/files/upload",
		c.Request.Method == http.MethodPut && strings.HasSuffix(path, "/content"):
		return GroupUpload
	case path == apiPrefix+"/billing/webhook":
		return GroupWebhook
	default:
		return GroupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
