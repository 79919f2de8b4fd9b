package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/flipledger/internal/repos"
)

// Reconcile recomputes the balance from the completed entries and overwrites
// the cached value when they differ. Running it again is a no-op.
func (e *Engine) Reconcile(ctx context.Context, accountID string) (ReconcileResult, error) {
	var res ReconcileResult

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		acc, err := tx.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		folded, err := tx.Entries().FoldBalance(ctx, accountID)
		if err != nil {
			return fmt.Errorf("fold balance: %w", err)
		}

		res = ReconcileResult{Previous: acc.Balance, New: folded}
		if !res.Changed() {
			return nil
		}

		return tx.Accounts().SetBalance(ctx, accountID, folded)
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: %w", err)
	}

	if res.Changed() {
		slog.WarnContext(ctx, "balance drift corrected",
			"account_id", accountID,
			"cached", res.Previous.String(),
			"folded", res.New.String(),
		)
	}

	return res, nil
}
