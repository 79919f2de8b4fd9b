package accounts

import (
	"context"
	"fmt"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/ledger"
)

const boundAddressKey = "accounts_bound_deposit_address_key"

// BindDepositAddress is a no-op when the same address is already bound and
// fails with ledger.ErrAlreadyBound when a different one is.
func (r *accountsRepo) BindDepositAddress(ctx context.Context, id, address string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET bound_deposit_address = $2, updated_at = now()
		WHERE id = $1
		  AND (bound_deposit_address IS NULL OR bound_deposit_address = $2)
	`, id, address)
	if err != nil {
		if name, ok := pgutils.UniqueViolation(err); ok && name == boundAddressKey {
			return ledger.ErrAddressInUse
		}

		return fmt.Errorf("bind deposit address: %w", err)
	}

	return expectOne(res, ledger.ErrAlreadyBound)
}

func (r *accountsRepo) ClearDepositAddress(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET bound_deposit_address = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear deposit address: %w", err)
	}

	return expectOne(res, ledger.ErrAccountNotFound)
}

// SetPayoutAddress clears the payout address when address is nil.
func (r *accountsRepo) SetPayoutAddress(ctx context.Context, id string, address *string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET payout_address = $2, updated_at = now()
		WHERE id = $1
	`, id, address)
	if err != nil {
		return fmt.Errorf("set payout address: %w", err)
	}

	return expectOne(res, ledger.ErrAccountNotFound)
}
