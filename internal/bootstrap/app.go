package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "cloudvault-backend/internal/auth"
	"cloudvault-backend/internal/billing"
	stripeprovider "cloudvault-backend/internal/billing/stripe"
	"cloudvault-backend/internal/files"
	"cloudvault-backend/internal/queue"
	"cloudvault-backend/internal/services/health"
	"cloudvault-backend/internal/session"
	"cloudvault-backend/internal/shared/config"
	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/server"
	"cloudvault-backend/internal/shared/server/middleware"
	"cloudvault-backend/internal/shared/storage/db"
	"cloudvault-backend/internal/shared/storage/object"
	gcsstore "cloudvault-backend/internal/shared/storage/object/gcs"
	localstore "cloudvault-backend/internal/shared/storage/object/local"
	miniostore "cloudvault-backend/internal/shared/storage/object/minio"
	s3store "cloudvault-backend/internal/shared/storage/object/s3"
	"cloudvault-backend/internal/shared/telemetry"
)

const (
	providerTokenCacheSize = 1024
	providerTokenCacheTTL  = time.Minute
)

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Queue    queue.Client
	Sessions *session.LocalIssuer
	Resolver *session.Resolver

	FilesRepo    files.Repo
	FilesService *files.Service
	FilesHandler *files.Handler

	BillingRepo    billing.Repo
	BillingEvents  billing.EventLog
	Plans          *billing.PlanPriceTable
	Reconciler     *billing.Reconciler
	BillingService *billing.Service
	BillingHandler *billing.Handler

	GoogleAuth *googleauth.GoogleService
	Health     *health.Service
}

// Build prepares dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	return BuildContext(context.Background(), cfg)
}

// BuildContext is Build with a caller-supplied context for network setup
// (database, object store, OIDC discovery).
func BuildContext(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		cfg.SessionCookie = "vault_session"
	}

	sqlDB, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		metrics.RegisterDB(sqlDB, "metadata")
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Health: health.NewService(sqlDB),
	}

	if err := buildSessions(ctx, app); err != nil {
		return nil, err
	}
	if err := buildBilling(app); err != nil {
		return nil, err
	}
	buildFiles(app)

	app.GoogleAuth = googleauth.NewGoogleService(googleauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		UIRedirect:   cfg.UIRedirectURL,
		CookieName:   cfg.SessionCookie,
		SecureCookie: !cfg.IsDevLike(),
	}, app.Sessions)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Resolver:    app.Resolver,
		Health:      app.Health,
		Files:       app.FilesHandler,
		Billing:     app.BillingHandler,
		GoogleAuth:  app.GoogleAuth,
		RateLimiter: middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// OpenDB connects to Postgres. Dev-like environments fall back to nil (in-memory
// repositories) when no database is reachable.
func OpenDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "err": err})
			return nil, nil
		}
		return nil, err
	}

	// Dev databases are migrated on boot; other environments run cmd/migrate.
	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

// OpenStore returns the object store selected by OBJECT_STORE.
func OpenStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	case "gcs":
		if strings.TrimSpace(cfg.GCSBucket) == "" {
			return nil, errors.New("OBJECT_STORE=gcs requires GCS_BUCKET")
		}
		return gcsstore.New(ctx, cfg.GCSBucket)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.OrphanQueueURL) == "" {
		return queue.LogClient{}, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.OrphanQueueURL)
}

func buildSessions(ctx context.Context, app *App) error {
	cfg := app.Config
	secret := strings.TrimSpace(cfg.SessionSecret)
	if secret == "" {
		if !cfg.IsDevLike() {
			return errors.New("SESSION_SECRET is required")
		}
		var err error
		if secret, err = randomSecret(); err != nil {
			return err
		}
		telemetry.Warn("bootstrap.ephemeral_session_secret", map[string]any{"env": cfg.Env})
	}
	issuer, err := session.NewLocalIssuer(secret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	var provider session.TokenVerifier
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		verifier, err := session.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return err
		}
		provider = verifier
	}

	app.Sessions = issuer
	app.Resolver = session.NewResolver(provider, issuer, providerTokenCacheSize, providerTokenCacheTTL)
	return nil
}

func buildBilling(app *App) error {
	plans, err := billing.PlanPriceTableFromConfig(app.Config.StripePrices)
	if err != nil {
		return fmt.Errorf("plan price table: %w", err)
	}

	if app.DB != nil {
		app.BillingRepo = &billing.PGRepo{DB: app.DB}
		app.BillingEvents = &billing.PGEventLog{DB: app.DB}
	} else {
		app.BillingRepo = billing.NewMemoryRepo()
		app.BillingEvents = billing.NewMemoryEventLog()
	}

	var provider billing.Provider
	if app.Config.StripeAPIKey != "" || app.Config.StripeWebhookSecret != "" {
		provider = stripeprovider.New(app.Config.StripeAPIKey, app.Config.StripeWebhookSecret)
	}

	app.Plans = plans
	app.Reconciler = billing.NewReconciler(app.BillingRepo, plans, app.Config.BillingTimeout)
	app.BillingService = &billing.Service{
		Repo:       app.BillingRepo,
		Plans:      plans,
		Provider:   provider,
		Reconciler: app.Reconciler,
		Events:     app.BillingEvents,
		AppURL:     app.Config.AppURL,
	}
	app.BillingHandler = billing.NewHandler(app.BillingService)
	return nil
}

func buildFiles(app *App) {
	if app.DB != nil {
		app.FilesRepo = &files.PGRepo{DB: app.DB}
	} else {
		app.FilesRepo = files.NewMemoryRepo()
	}
	app.FilesService = &files.Service{
		Store:          app.Store,
		Repo:           app.FilesRepo,
		Orphans:        app.Queue,
		Quota:          billing.QuotaPolicy{Repo: app.BillingRepo},
		MaxUploadBytes: app.Config.MaxUploadBytes,
		StoreTimeout:   app.Config.StoreTimeout,
		PublicBaseURL:  app.Config.PublicBaseURL,
	}
	app.FilesHandler = files.NewHandler(app.FilesService)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
