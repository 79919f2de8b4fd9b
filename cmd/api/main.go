package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/flipledger/internal/api"
	"github.com/fastprodman/flipledger/internal/chain/payout"
	"github.com/fastprodman/flipledger/internal/chain/solanarpc"
	"github.com/fastprodman/flipledger/internal/config"
	"github.com/fastprodman/flipledger/internal/events"
	"github.com/fastprodman/flipledger/internal/identity"
	"github.com/fastprodman/flipledger/internal/infra/kafka"
	"github.com/fastprodman/flipledger/internal/infra/logging"
	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/infra/rabbitmq"
	"github.com/fastprodman/flipledger/internal/infra/ratelimit"
	"github.com/fastprodman/flipledger/internal/jobs"
	"github.com/fastprodman/flipledger/internal/repos/pgstore"
	"github.com/fastprodman/flipledger/internal/services/wallet"
	"github.com/fastprodman/flipledger/pkg/envconf"
	"github.com/fastprodman/flipledger/pkg/shutdownqueue"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	// .env is optional and never overrides the real environment.
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)
	slog.Debug("config loaded", "env", envconf.Redacted(cfg))

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("database", func(context.Context) error {
		return db.Close()
	})

	store := pgstore.New(db)

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}

	shutdownqueue.Add("event publisher", func(context.Context) error {
		return publisher.Close()
	})

	limiter := newLimiter(cfg.Redis)
	if limiter != nil {
		shutdownqueue.Add("rate limiter", func(context.Context) error {
			return limiter.Close()
		})
	}

	// --- Engine ---
	policy, err := wallet.NewPolicy(cfg.Policy, cfg.Chain)
	if err != nil {
		return fmt.Errorf("init policy: %w", err)
	}

	rpc, err := solanarpc.NewClient(cfg.Chain.RPCURL, cfg.Chain.PoolTokenAccount, cfg.Chain.Timeout)
	if err != nil {
		return fmt.Errorf("init solana client: %w", err)
	}

	payer := payout.NewClient(cfg.Chain.PayoutBaseURL, cfg.Chain.PayoutAPIKey, cfg.Chain.Timeout)

	engine := wallet.New(wallet.Deps{
		Store:    store,
		Reader:   rpc,
		Treasury: rpc,
		Payer:    payer,
	}, policy)

	// --- Jobs ---
	relay := jobs.NewOutboxRelay(store, publisher, cfg.Events)
	recovery := jobs.NewWithdrawalRecovery(engine, cfg.Recovery)

	go relay.Start(ctx)
	go recovery.Start(ctx)

	shutdownqueue.Add("outbox relay", relay.Stop)
	shutdownqueue.Add("withdrawal recovery", recovery.Stop)

	// --- HTTP server ---
	deps := api.Deps{
		Wallet:         engine,
		Verifier:       identity.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience),
		AllowedOrigins: cfg.CORSOrigins,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}

	srv := api.NewServer(cfg.Port, deps)

	shutdownqueue.Add("http server", srv.Shutdown)

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port, "events_broker", cfg.Events.Broker)

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func newPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Broker {
	case "", "none":
		return events.LogPublisher{}, nil
	case "amqp":
		return rabbitmq.Dial(cfg.AMQPURL, cfg.AMQPExchange)
	case "kafka":
		return kafka.Dial(cfg.KafkaBrokers)
	default:
		return nil, fmt.Errorf("unknown events broker %q", cfg.Broker)
	}
}

// newLimiter returns nil when no Redis address is configured.
func newLimiter(cfg config.RedisConfig) *ratelimit.Limiter {
	if cfg.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return ratelimit.New(client, cfg.Prefix, cfg.RateLimit, cfg.Window)
}
