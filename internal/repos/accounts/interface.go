package accounts

import (
	"context"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Accounts is bound to one unit of work; see repos.Store.
type Accounts interface {
	// EnsureByIdentity returns the account for identity.Subject, creating it
	// with id when it does not exist yet.
	EnsureByIdentity(ctx context.Context, id string, identity ledger.Identity) (ledger.Account, bool, error)
	Get(ctx context.Context, id string) (ledger.Account, error)
	// LockForUpdate reads the account and holds its row lock until the unit
	// of work ends.
	LockForUpdate(ctx context.Context, id string) (ledger.Account, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	IncreaseBalance(ctx context.Context, id string, amount decimal.Decimal) error
	// DecreaseBalance fails with ledger.ErrInsufficientFunds instead of going
	// below zero.
	DecreaseBalance(ctx context.Context, id string, amount decimal.Decimal) error
	// BindDepositAddress sets the address only while none is bound.
	BindDepositAddress(ctx context.Context, id, address string) error
	ClearDepositAddress(ctx context.Context, id string) error
	SetPayoutAddress(ctx context.Context, id string, address *string) error
}
