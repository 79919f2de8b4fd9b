package entries

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func (r *entriesRepo) FoldBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal

	err := r.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(`+signedAmount+`), 0)
		FROM ledger_entries
		WHERE account_id = $1
		  AND status = 'completed'
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fold balance: %w", err)
	}

	return sum, nil
}

func (r *entriesRepo) PendingWithdrawTotal(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal

	err := r.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1
		  AND kind = 'withdraw'
		  AND status = 'pending'
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pending withdrawals: %w", err)
	}

	return sum, nil
}

// poolLockKey names the transaction scoped advisory lock taken by
// ReservePool.
const poolLockKey int64 = 0x666c6970706f6f6c

func (r *entriesRepo) ReservePool(ctx context.Context) (decimal.Decimal, error) {
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, poolLockKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock pool: %w", err)
	}

	var sum decimal.Decimal

	err = r.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE kind = 'withdraw'
		  AND status = 'pending'
	`).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pool pending withdrawals: %w", err)
	}

	return sum, nil
}

func (r *entriesRepo) CountBetsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var n int

	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE account_id = $1
		  AND kind IN ('bet_win', 'bet_loss')
		  AND created_at > $2
	`, accountID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bets: %w", err)
	}

	return n, nil
}
