// Package chain describes the on-chain collaborators the wallet engine
// consumes: a transaction reader, the treasury pool and the payout signer.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the network has no transaction for the reference.
	ErrNotFound = errors.New("transaction not found")
	// ErrTransferRejected is a definitive refusal: no transfer left the pool.
	ErrTransferRejected = errors.New("transfer rejected")
)

// TokenBalanceChange is one token account's balance around a transaction,
// in UI units of the mint.
type TokenBalanceChange struct {
	Mint   string
	Owner  string
	Before decimal.Decimal
	After  decimal.Decimal
}

// Delta is After - Before.
func (c TokenBalanceChange) Delta() decimal.Decimal {
	return c.After.Sub(c.Before)
}

type Transaction struct {
	Ref       string
	Success   bool
	Err       string
	BlockTime time.Time
	Changes   []TokenBalanceChange
}

// PayoutRequest moves Amount from the pool to To. Reference is the caller's
// idempotency key; resubmitting it never pays twice.
type PayoutRequest struct {
	Reference string
	To        string
	Amount    decimal.Decimal
}

type Reader interface {
	GetTransaction(ctx context.Context, ref string) (Transaction, error)
}

type Treasury interface {
	PoolBalance(ctx context.Context) (decimal.Decimal, error)
}

type Payer interface {
	// TransferAsset returns the on-chain reference of the payout.
	TransferAsset(ctx context.Context, req PayoutRequest) (string, error)
	// FindPayout looks a previous TransferAsset call up by its reference.
	FindPayout(ctx context.Context, reference string) (string, bool, error)
}
