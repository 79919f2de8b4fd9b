package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fastprodman/flipledger/internal/chain"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deposit credits a verified on-chain transfer (ManualDeposit) or refreshes
// the balance of a bound account (AutoRescan).
func (e *Engine) Deposit(ctx context.Context, accountID string, req DepositRequest) (DepositResult, error) {
	switch r := req.(type) {
	case ManualDeposit:
		return e.depositManual(ctx, accountID, r.ExternalRef)
	case AutoRescan:
		return e.rescan(ctx, accountID)
	default:
		return DepositResult{}, fmt.Errorf("unsupported deposit request %T", req)
	}
}

func (e *Engine) rescan(ctx context.Context, accountID string) (DepositResult, error) {
	sum, err := e.GetAccount(ctx, accountID)
	if err != nil {
		return DepositResult{}, err
	}

	if sum.Account.BoundDepositAddress == nil {
		return DepositResult{}, fmt.Errorf("rescan: %w", ErrUnbound)
	}

	rec, err := e.Reconcile(ctx, accountID)
	if err != nil {
		return DepositResult{}, err
	}

	return DepositResult{Credited: decimal.Zero, Balance: rec.New}, nil
}

// depositManual runs the verification flow:
//
// 1) Reject known references before calling out.
// 2) Fetch the transaction from the chain.
// 3) Extract the sender and the amount received by the pool.
// 4) In one unit of work: check or bind the sender, append the deposit,
// credit the balance minus the fee.
// 5) Reconcile.
func (e *Engine) depositManual(ctx context.Context, accountID, ref string) (DepositResult, error) {
	err := validateReference(ref)
	if err != nil {
		return DepositResult{}, err
	}

	// 1) Duplicate guard; the unique index still decides under races.
	err = e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		_, err := tx.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}

		exists, err := tx.Entries().ExistsByExternalRef(ctx, ref)
		if err != nil {
			return fmt.Errorf("check external ref: %w", err)
		}

		if exists {
			return ErrDuplicateReference
		}

		return nil
	})
	if err != nil {
		return DepositResult{}, fmt.Errorf("deposit: %w", err)
	}

	// 2) Fetch
	tx, err := e.fetchTransaction(ctx, ref)
	if err != nil {
		return DepositResult{}, fmt.Errorf("deposit: %w", err)
	}

	// 3) Extract
	sender, transferred, err := extractTransfer(tx, e.policy.Mint, e.policy.PoolOwner)
	if err != nil {
		return DepositResult{}, fmt.Errorf("deposit: %w", err)
	}

	credited := decimal.Max(decimal.Zero, transferred.Sub(e.policy.DepositFee))

	// 4) Record
	cctx, cancel := e.detached(ctx)
	defer cancel()

	var (
		entry ledger.Entry
		first bool
	)

	err = e.store.WithTx(cctx, func(ctx context.Context, t repos.Tx) error {
		acc, err := t.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		if acc.BoundDepositAddress != nil && *acc.BoundDepositAddress != sender {
			return ErrAddressMismatch
		}

		first = acc.BoundDepositAddress == nil

		now := e.now()
		pool := e.policy.PoolOwner
		entry = ledger.Entry{
			ID:          uuid.NewString(),
			AccountID:   acc.ID,
			Kind:        ledger.KindDeposit,
			Amount:      credited,
			ExternalRef: &ref,
			From:        &sender,
			To:          &pool,
			Status:      ledger.StatusCompleted,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = t.Entries().Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("append deposit: %w", err)
		}

		if first {
			err = t.Accounts().BindDepositAddress(ctx, acc.ID, sender)
			if err != nil {
				return fmt.Errorf("bind deposit address: %w", err)
			}
		}

		if credited.IsPositive() {
			err = t.Accounts().IncreaseBalance(ctx, acc.ID, credited)
			if err != nil {
				return fmt.Errorf("increase balance: %w", err)
			}
		}

		return e.emit(ctx, t, entry)
	})
	if err != nil {
		return DepositResult{}, fmt.Errorf("deposit: %w", err)
	}

	slog.InfoContext(ctx, "deposit credited",
		"account_id", accountID,
		"entry_id", entry.ID,
		"external_ref", ref,
		"transferred", transferred.String(),
		"credited", credited.String(),
		"first_deposit", first,
	)

	// 5) Reconcile
	rec, err := e.Reconcile(cctx, accountID)
	if err != nil {
		return DepositResult{}, fmt.Errorf("deposit: %w", err)
	}

	return DepositResult{
		EntryID:      entry.ID,
		Credited:     credited,
		Balance:      rec.New,
		FirstDeposit: first,
	}, nil
}

func (e *Engine) fetchTransaction(ctx context.Context, ref string) (chain.Transaction, error) {
	ctx, cancel := e.external(ctx)
	defer cancel()

	tx, err := e.reader.GetTransaction(ctx, ref)
	switch {
	case errors.Is(err, chain.ErrNotFound):
		return chain.Transaction{}, ErrExternalNotFound
	case err != nil:
		slog.WarnContext(ctx, "chain read failed", "external_ref", ref, "error", err)
		return chain.Transaction{}, fmt.Errorf("%w: %w", ErrExternalUnavailable, err)
	case !tx.Success:
		return chain.Transaction{}, fmt.Errorf("%w: %s", ErrExternalTxFailed, tx.Err)
	}

	return tx, nil
}

// extractTransfer finds the single non-pool owner that lost mint tokens and
// the amount the pool owner gained.
func extractTransfer(tx chain.Transaction, mint, poolOwner string) (string, decimal.Decimal, error) {
	deltas := make(map[string]decimal.Decimal)
	order := make([]string, 0, len(tx.Changes))

	for _, ch := range tx.Changes {
		if ch.Mint != mint || ch.Owner == "" {
			continue
		}

		if _, ok := deltas[ch.Owner]; !ok {
			order = append(order, ch.Owner)
		}

		deltas[ch.Owner] = deltas[ch.Owner].Add(ch.Delta())
	}

	var senders []string

	for _, owner := range order {
		if owner != poolOwner && deltas[owner].IsNegative() {
			senders = append(senders, owner)
		}
	}

	received := deltas[poolOwner]

	if len(senders) != 1 || !received.IsPositive() {
		return "", decimal.Zero, ErrNoMatchingTransfer
	}

	return senders[0], received, nil
}
