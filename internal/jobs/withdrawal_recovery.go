package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/fastprodman/flipledger/internal/config"
	"github.com/fastprodman/flipledger/internal/services/wallet"
)

type recoverer interface {
	RecoverPendingWithdrawals(ctx context.Context, olderThan time.Duration, limit int) (wallet.RecoveryResult, error)
}

// WithdrawalRecovery settles withdrawals whose payout outcome was unknown
// when the request returned.
type WithdrawalRecovery struct {
	*loop

	engine    recoverer
	minAge    time.Duration
	batchSize int
}

func NewWithdrawalRecovery(engine recoverer, cfg config.RecoveryConfig) *WithdrawalRecovery {
	return &WithdrawalRecovery{
		loop:      newLoop("withdrawal_recovery", cfg.Interval),
		engine:    engine,
		minAge:    cfg.MinAge,
		batchSize: cfg.BatchSize,
	}
}

func (j *WithdrawalRecovery) Start(ctx context.Context) {
	j.run(ctx, j.tick)
}

func (j *WithdrawalRecovery) tick(ctx context.Context) {
	res, err := j.engine.RecoverPendingWithdrawals(ctx, j.minAge, j.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "recover pending withdrawals", "error", err)
		return
	}

	if res == (wallet.RecoveryResult{}) {
		return
	}

	slog.InfoContext(ctx, "pending withdrawals recovered",
		"completed", res.Completed,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
}
