package entries

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/ledger"
)

// Complete keeps the stored external reference when externalRef is empty.
func (r *entriesRepo) Complete(ctx context.Context, id, externalRef string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'completed',
		    external_ref = COALESCE(NULLIF($2, ''), external_ref),
		    updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
	`, id, externalRef, at)
	if err != nil {
		if name, ok := pgutils.UniqueViolation(err); ok && name == externalRefKey {
			return ledger.ErrDuplicateExternalRef
		}

		return fmt.Errorf("complete entry: %w", err)
	}

	return r.checkTransition(ctx, id, res)
}

func (r *entriesRepo) Fail(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'failed', updated_at = $2
		WHERE id = $1
		  AND status = 'pending'
	`, id, at)
	if err != nil {
		return fmt.Errorf("fail entry: %w", err)
	}

	return r.checkTransition(ctx, id, res)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// checkTransition tells a missing entry apart from one that already left
// the pending state.
func (r *entriesRepo) checkTransition(ctx context.Context, id string, res rowsAffecter) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 1 {
		return nil
	}

	_, err = r.Get(ctx, id)
	if err != nil {
		return err
	}

	return ledger.ErrEntryNotPending
}
