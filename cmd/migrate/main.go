package main

// Run database migrations:
//   go run ./cmd/migrate            apply pending migrations
//   go run ./cmd/migrate -down      roll back the latest migration
//   go run ./cmd/migrate -version   print the current version

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cloudvault-backend/internal/shared/config"
	"cloudvault-backend/internal/shared/storage/db"
	"cloudvault-backend/internal/shared/telemetry"
)

func main() {
	down := flag.Bool("down", false, "roll back the latest migration")
	version := flag.Bool("version", false, "print the current migration version")
	flag.Parse()

	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		telemetry.Error("migrate.no_database", map[string]any{"err": "DATABASE_URL is required"})
		os.Exit(1)
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"err": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch {
	case *version:
		v, err := db.MigrationVersion(ctx, sqlDB)
		if err != nil {
			telemetry.Error("migrate.version_failed", map[string]any{"err": err})
			os.Exit(1)
		}
		fmt.Println(v)
	case *down:
		if err := db.RollbackMigration(ctx, sqlDB); err != nil {
			telemetry.Error("migrate.down_failed", map[string]any{"err": err})
			os.Exit(1)
		}
	default:
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			telemetry.Error("migrate.up_failed", map[string]any{"err": err})
			os.Exit(1)
		}
		telemetry.Info("migrate.done", nil)
	}
}
