package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/flipledger/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	CORSOrigins     []string      `env:"APP_CORS_ORIGINS" default:""`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Events   config.EventsConfig
	Chain    config.ChainConfig
	Auth     config.AuthConfig
	Policy   config.PolicyConfig
	Recovery config.RecoveryConfig
}
