package accounts

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

const accountColumns = `
	id, subject, email, display_name, avatar_url,
	bound_deposit_address, payout_address, balance, created_at, updated_at`

type accountsRepo struct{ q pgutils.Querier }

// New binds the repository to q, normally the *sql.Tx of a unit of work.
func New(q pgutils.Querier) *accountsRepo {
	return &accountsRepo{q: q}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		a             ledger.Account
		bound, payout sql.NullString
	)

	err := row.Scan(
		&a.ID, &a.Subject, &a.Email, &a.DisplayName, &a.AvatarURL,
		&bound, &payout, &a.Balance, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("scan account: %w", err)
	}

	if bound.Valid {
		a.BoundDepositAddress = &bound.String
	}

	if payout.Valid {
		a.PayoutAddress = &payout.String
	}

	return a, nil
}
