package entries

import (
	"context"
	"fmt"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/ledger"
)

func (r *entriesRepo) Append(ctx context.Context, entry ledger.Entry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, account_id, kind, amount, external_ref,
			counterparty_from, counterparty_to, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`,
		entry.ID, entry.AccountID, string(entry.Kind), entry.Amount, entry.ExternalRef,
		entry.From, entry.To, string(entry.Status), entry.CreatedAt,
	)
	if err != nil {
		if name, ok := pgutils.UniqueViolation(err); ok && name == externalRefKey {
			return ledger.ErrDuplicateExternalRef
		}

		if pgutils.IsForeignKeyViolation(err) {
			return ledger.ErrAccountNotFound
		}

		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}
