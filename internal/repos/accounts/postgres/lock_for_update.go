package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/flipledger/internal/ledger"
)

func (r *accountsRepo) LockForUpdate(ctx context.Context, id string) (ledger.Account, error) {
	account, err := scanAccount(r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, ledger.ErrAccountNotFound
		}

		return ledger.Account{}, fmt.Errorf("lock account: %w", err)
	}

	return account, nil
}
