package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/google/uuid"
)

// EnsureAccount returns the account of identity, creating it on the first
// login. A configured default balance is granted as a completed deposit
// without external reference so the balance stays a fold of the ledger.
func (e *Engine) EnsureAccount(ctx context.Context, identity ledger.Identity) (ledger.Account, bool, error) {
	var (
		acc     ledger.Account
		created bool
	)

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		var err error

		acc, created, err = tx.Accounts().EnsureByIdentity(ctx, uuid.NewString(), identity)
		if err != nil {
			return fmt.Errorf("ensure by identity: %w", err)
		}

		if !created || !e.policy.DefaultBalance.IsPositive() {
			return nil
		}

		now := e.now()
		grant := ledger.Entry{
			ID:        uuid.NewString(),
			AccountID: acc.ID,
			Kind:      ledger.KindDeposit,
			Amount:    e.policy.DefaultBalance,
			Status:    ledger.StatusCompleted,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = tx.Entries().Append(ctx, grant)
		if err != nil {
			return fmt.Errorf("append signup grant: %w", err)
		}

		err = tx.Accounts().IncreaseBalance(ctx, acc.ID, grant.Amount)
		if err != nil {
			return fmt.Errorf("increase balance: %w", err)
		}

		err = e.emit(ctx, tx, grant)
		if err != nil {
			return err
		}

		acc.Balance = acc.Balance.Add(grant.Amount)

		return nil
	})
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("ensure account: %w", err)
	}

	if created {
		slog.InfoContext(ctx, "account created", "account_id", acc.ID, "subject", acc.Subject)
	}

	return acc, created, nil
}

func (e *Engine) GetAccount(ctx context.Context, accountID string) (Summary, error) {
	var out Summary

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		acc, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}

		avail, err := available(ctx, tx, acc)
		if err != nil {
			return err
		}

		out = Summary{Account: acc, Available: avail}

		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("get account: %w", err)
	}

	return out, nil
}

// History returns the newest entries first. limit is clamped to [1, 100];
// zero or less means the default of 20.
func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	var out []ledger.Entry

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		_, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}

		out, err = tx.Entries().Recent(ctx, accountID, limit)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return out, nil
}

// SetPayoutAddress makes address the preferred withdrawal destination.
func (e *Engine) SetPayoutAddress(ctx context.Context, accountID, address string) error {
	err := ValidateAddress(address)
	if err != nil {
		return err
	}

	if e.policy.isPool(address) {
		return ErrSelfDeal
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		return tx.Accounts().SetPayoutAddress(ctx, accountID, &address)
	})
	if err != nil {
		return fmt.Errorf("set payout address: %w", err)
	}

	slog.InfoContext(ctx, "payout address set", "account_id", accountID, "address", address)

	return nil
}

func (e *Engine) ClearPayoutAddress(ctx context.Context, accountID string) error {
	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		return tx.Accounts().SetPayoutAddress(ctx, accountID, nil)
	})
	if err != nil {
		return fmt.Errorf("clear payout address: %w", err)
	}

	return nil
}

// ClearDepositBinding forgets the bound deposit address so the next verified
// deposit binds again. Deposits never call it.
func (e *Engine) ClearDepositBinding(ctx context.Context, accountID string) error {
	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		_, err := tx.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		return tx.Accounts().ClearDepositAddress(ctx, accountID)
	})
	if err != nil {
		return fmt.Errorf("clear deposit binding: %w", err)
	}

	slog.WarnContext(ctx, "deposit binding cleared", "account_id", accountID)

	return nil
}

// ResolvePayoutAddress prefers the explicit payout address over the bound
// deposit address.
func (e *Engine) ResolvePayoutAddress(ctx context.Context, accountID string) (string, error) {
	var out string

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		acc, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}

		out, err = payoutDestination(acc)

		return err
	})
	if err != nil {
		return "", fmt.Errorf("resolve payout address: %w", err)
	}

	return out, nil
}

func payoutDestination(acc ledger.Account) (string, error) {
	switch {
	case acc.PayoutAddress != nil && *acc.PayoutAddress != "":
		return *acc.PayoutAddress, nil
	case acc.BoundDepositAddress != nil && *acc.BoundDepositAddress != "":
		return *acc.BoundDepositAddress, nil
	default:
		return "", ErrUnbound
	}
}
