package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/flipledger/internal/chain"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Withdraw pays amount out of the pool:
//
// 1) Under the row lock: resolve the destination, check the available
// balance, check the pool net of every pending withdrawal, append a pending
// withdraw entry.
// 2) Ask the payer to transfer, using the entry id as the idempotency key.
// 3) Complete the entry and debit, or fail it when the payer rejected the
// transfer.
//
// When the payer cannot be reached the entry stays pending and
// RecoverPendingWithdrawals settles it later.
func (e *Engine) Withdraw(ctx context.Context, accountID, amount string) (WithdrawResult, error) {
	value, err := ParseAmount(amount)
	if err != nil {
		return WithdrawResult{}, err
	}

	err = validateAmount(value, e.policy.MaxWithdraw)
	if err != nil {
		return WithdrawResult{}, err
	}

	// 1) Reserve
	var entry ledger.Entry

	err = e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		acc, err := tx.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		dest, err := payoutDestination(acc)
		if err != nil {
			return err
		}

		avail, err := available(ctx, tx, acc)
		if err != nil {
			return err
		}

		if value.GreaterThan(avail) {
			return ErrInsufficientBalance
		}

		reserved, err := tx.Entries().ReservePool(ctx)
		if err != nil {
			return fmt.Errorf("reserve pool: %w", err)
		}

		pool, err := e.poolBalance(ctx)
		if err != nil {
			return err
		}

		if pool.Sub(reserved).LessThan(value) {
			return ErrInsufficientPoolFunds
		}

		now := e.now()
		from := e.policy.PoolOwner
		entry = ledger.Entry{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      ledger.KindWithdraw,
			Amount:    value,
			From:      &from,
			To:        &dest,
			Status:    ledger.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = tx.Entries().Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("append withdrawal: %w", err)
		}

		return nil
	})
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("withdraw: %w", err)
	}

	// 2) Pay out. A caller going away must not abandon a submitted transfer.
	pctx, cancel := e.external(context.WithoutCancel(ctx))
	sig, err := e.payer.TransferAsset(pctx, chain.PayoutRequest{
		Reference: entry.ID,
		To:        *entry.To,
		Amount:    value,
	})
	cancel()

	if errors.Is(err, chain.ErrTransferRejected) {
		slog.WarnContext(ctx, "payout rejected", "account_id", accountID, "entry_id", entry.ID, "error", err)

		ferr := e.failWithdrawal(ctx, entry)
		if ferr != nil {
			return WithdrawResult{}, fmt.Errorf("withdraw: %w", errors.Join(ErrExternalTransferFailed, ferr))
		}

		return WithdrawResult{}, fmt.Errorf("withdraw: %w: %w", ErrExternalTransferFailed, err)
	}

	if err != nil {
		slog.WarnContext(ctx, "payout outcome unknown, left pending",
			"account_id", accountID,
			"entry_id", entry.ID,
			"error", err,
		)

		return WithdrawResult{}, fmt.Errorf("withdraw: %w: %w", ErrExternalUnavailable, err)
	}

	// 3) Settle
	balance, err := e.completeWithdrawal(ctx, entry, sig)
	if err != nil {
		slog.ErrorContext(ctx, "payout sent but not recorded, left pending",
			"account_id", accountID,
			"entry_id", entry.ID,
			"external_ref", sig,
			"error", err,
		)

		return WithdrawResult{}, fmt.Errorf("withdraw: %w", err)
	}

	slog.InfoContext(ctx, "withdrawal completed",
		"account_id", accountID,
		"entry_id", entry.ID,
		"external_ref", sig,
		"amount", value.String(),
	)

	return WithdrawResult{
		EntryID:     entry.ID,
		Amount:      value,
		To:          *entry.To,
		ExternalRef: sig,
		Balance:     balance,
	}, nil
}

func (e *Engine) poolBalance(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := e.external(ctx)
	defer cancel()

	pool, err := e.treasury.PoolBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: pool balance: %w", ErrExternalUnavailable, err)
	}

	return pool, nil
}

// completeWithdrawal marks the pending entry completed and debits the account.
func (e *Engine) completeWithdrawal(ctx context.Context, entry ledger.Entry, externalRef string) (decimal.Decimal, error) {
	ctx, cancel := e.detached(ctx)
	defer cancel()

	var balance decimal.Decimal

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		acc, err := tx.Accounts().LockForUpdate(ctx, entry.AccountID)
		if err != nil {
			return err
		}

		now := e.now()

		err = tx.Entries().Complete(ctx, entry.ID, externalRef, now)
		if err != nil {
			return fmt.Errorf("complete withdrawal: %w", err)
		}

		err = tx.Accounts().DecreaseBalance(ctx, entry.AccountID, entry.Amount)
		if err != nil {
			return fmt.Errorf("debit withdrawal: %w", err)
		}

		done := entry
		done.Status = ledger.StatusCompleted
		done.ExternalRef = &externalRef
		done.UpdatedAt = now
		balance = acc.Balance.Sub(entry.Amount)

		return e.emit(ctx, tx, done)
	})
	if err != nil {
		return decimal.Zero, err
	}

	return balance, nil
}

// failWithdrawal moves the pending entry to failed; the balance was never
// touched.
func (e *Engine) failWithdrawal(ctx context.Context, entry ledger.Entry) error {
	ctx, cancel := e.detached(ctx)
	defer cancel()

	return e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		_, err := tx.Accounts().LockForUpdate(ctx, entry.AccountID)
		if err != nil {
			return err
		}

		now := e.now()

		err = tx.Entries().Fail(ctx, entry.ID, now)
		if err != nil {
			return fmt.Errorf("fail withdrawal: %w", err)
		}

		failed := entry
		failed.Status = ledger.StatusFailed
		failed.UpdatedAt = now

		return e.emit(ctx, tx, failed)
	})
}

// RecoverPendingWithdrawals settles withdrawals left pending for longer than
// olderThan by asking the payer whether the transfer exists. olderThan must
// exceed the external timeout so in-flight payouts are not failed.
func (e *Engine) RecoverPendingWithdrawals(ctx context.Context, olderThan time.Duration, limit int) (RecoveryResult, error) {
	var pending []ledger.Entry

	err := e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		var err error

		pending, err = tx.Entries().ListPendingWithdrawals(ctx, e.now().Add(-olderThan), limit)

		return err
	})
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("list pending withdrawals: %w", err)
	}

	var res RecoveryResult

	for _, entry := range pending {
		cerr := ctx.Err()
		if cerr != nil {
			return res, cerr
		}

		fctx, cancel := e.external(ctx)
		sig, found, err := e.payer.FindPayout(fctx, entry.ID)
		cancel()

		if err != nil {
			slog.WarnContext(ctx, "payout lookup failed", "entry_id", entry.ID, "error", err)
			res.Skipped++

			continue
		}

		if found {
			_, err = e.completeWithdrawal(ctx, entry, sig)
		} else {
			err = e.failWithdrawal(ctx, entry)
		}

		switch {
		case errors.Is(err, ledger.ErrEntryNotPending):
			res.Skipped++
		case err != nil:
			slog.ErrorContext(ctx, "settle pending withdrawal", "entry_id", entry.ID, "error", err)
			res.Skipped++
		case found:
			slog.InfoContext(ctx, "pending withdrawal completed", "account_id", entry.AccountID, "entry_id", entry.ID, "external_ref", sig)
			res.Completed++
		default:
			slog.InfoContext(ctx, "pending withdrawal failed", "account_id", entry.AccountID, "entry_id", entry.ID)
			res.Failed++
		}
	}

	return res, nil
}
