package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/shopspring/decimal"
)

func (r *accountsRepo) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $2, updated_at = now()
		WHERE id = $1
	`, id, balance)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}

	return expectOne(res, ledger.ErrAccountNotFound)
}

func (r *accountsRepo) IncreaseBalance(ctx context.Context, id string, amount decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
	`, id, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	return expectOne(res, ledger.ErrAccountNotFound)
}

// DecreaseBalance is the storage backstop for the non-negative balance rule:
// the row is only touched when it can cover amount.
func (r *accountsRepo) DecreaseBalance(ctx context.Context, id string, amount decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - $2, updated_at = now()
		WHERE id = $1
		  AND balance >= $2
	`, id, amount)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	return expectOne(res, ledger.ErrInsufficientFunds)
}

func expectOne(res sql.Result, none error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return none
	}

	return nil
}
