// Package config holds the environment-bound settings shared by the binaries.
// Fields tagged secret are masked when the config is logged.
package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN" secret:"true"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"1h"`
	ConnectRetries  int           `env:"PG_CONNECT_RETRIES" default:"5"`
}

// RedisConfig drives the per-account request throttle. An empty Addr turns
// the throttle off.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR" default:""`
	Password  string        `env:"REDIS_PASSWORD" default:"" secret:"true"`
	DB        int           `env:"REDIS_DB" default:"0"`
	Prefix    string        `env:"REDIS_RATE_PREFIX" default:"flipledger:rate"`
	RateLimit int           `env:"REDIS_RATE_LIMIT" default:"60"`
	Window    time.Duration `env:"REDIS_RATE_WINDOW" default:"1m"`
}

type EventsConfig struct {
	Broker       string        `env:"EVENTS_BROKER" default:"none"` // none | amqp | kafka
	AMQPURL      string        `env:"AMQP_URL" default:"" secret:"true"`
	AMQPExchange string        `env:"AMQP_EXCHANGE" default:"ledger_events"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS" default:""`
	RelayEvery   time.Duration `env:"OUTBOX_RELAY_INTERVAL" default:"500ms"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" default:"100"`
	MaxRetries   int           `env:"OUTBOX_MAX_RETRIES" default:"10"`
}

type ChainConfig struct {
	RPCURL           string        `env:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	Mint             string        `env:"TOKEN_MINT"`
	PoolOwner        string        `env:"POOL_OWNER_ADDRESS"`
	PoolTokenAccount string        `env:"POOL_TOKEN_ACCOUNT"`
	PayoutBaseURL    string        `env:"PAYOUT_BASE_URL"`
	PayoutAPIKey     string        `env:"PAYOUT_API_KEY" secret:"true"`
	Timeout          time.Duration `env:"EXTERNAL_TIMEOUT" default:"15s"`
}

type AuthConfig struct {
	Secret   string `env:"JWT_SECRET" secret:"true"`
	Issuer   string `env:"JWT_ISSUER" default:""`
	Audience string `env:"JWT_AUDIENCE" default:""`
}

// PolicyConfig carries the product rules of the wallet engine. Decimal
// values stay strings here and are parsed by the caller.
type PolicyConfig struct {
	DepositFee     string        `env:"DEPOSIT_FEE" default:"0.05"`
	DefaultBalance string        `env:"DEFAULT_BALANCE" default:"0"`
	MaxWithdraw    string        `env:"MAX_WITHDRAW" default:"1000"`
	MaxBet         string        `env:"MAX_BET" default:"100"`
	WinThreshold   float64       `env:"WIN_THRESHOLD" default:"0.51"`
	BetLimit       int           `env:"BET_LIMIT" default:"30"`
	BetWindow      time.Duration `env:"BET_WINDOW" default:"1m"`
	CommitTimeout  time.Duration `env:"COMMIT_TIMEOUT" default:"10s"`
}

type RecoveryConfig struct {
	Interval  time.Duration `env:"RECOVERY_INTERVAL" default:"1m"`
	MinAge    time.Duration `env:"RECOVERY_AGE" default:"10m"`
	BatchSize int           `env:"RECOVERY_BATCH_SIZE" default:"50"`
}
