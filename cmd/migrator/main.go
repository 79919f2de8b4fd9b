package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fastprodman/flipledger/cmd/migrator/migrations"
	"github.com/fastprodman/flipledger/internal/infra/logging"
	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/pkg/envconf"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Seed accounts for local runs.
//
//go:embed test_data/*.sql
var seedFS embed.FS

// Seeds keep their own version table so their numbering never collides
// with the schema versions.
const seedMigrationsTable = "schema_migrations_dev_seed"

type migratorConfig struct {
	DSN         string        `env:"PG_DSN" secret:"true"`
	LogLevel    slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	AppEnv      string        `env:"APP_ENV" default:"PROD"`
	PingTimeout time.Duration `env:"PG_PING_TIMEOUT" default:"10s"`
}

func main() {
	err := run()
	if err != nil {
		slog.Error("migration run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := new(migratorConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	version, err := pgutils.Migrate(db, migrations.Schema, ".", "")
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	slog.Info("schema migrated", "version", version)

	if cfg.AppEnv != "DEV" {
		return nil
	}

	version, err = pgutils.Migrate(db, seedFS, "test_data", seedMigrationsTable)
	if err != nil {
		return fmt.Errorf("dev seeds: %w", err)
	}

	slog.Info("dev seeds applied", "version", version)

	return nil
}
