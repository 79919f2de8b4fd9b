package entries

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
)

func (r *entriesRepo) Recent(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent entries: %w", err)
	}

	return scanEntries(rows)
}

func (r *entriesRepo) ListPendingWithdrawals(ctx context.Context, before time.Time, limit int) ([]ledger.Entry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE kind = 'withdraw'
		  AND status = 'pending'
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending withdrawals: %w", err)
	}

	return scanEntries(rows)
}
