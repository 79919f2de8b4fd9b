package entries

import (
	"context"
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Entries is the append-only ledger log bound to one unit of work.
type Entries interface {
	// Append fails with ledger.ErrDuplicateExternalRef when the entry's
	// external reference is already recorded.
	Append(ctx context.Context, entry ledger.Entry) error
	Get(ctx context.Context, id string) (ledger.Entry, error)
	ExistsByExternalRef(ctx context.Context, ref string) (bool, error)
	// Complete moves a pending entry to completed and records its external
	// reference.
	Complete(ctx context.Context, id, externalRef string, at time.Time) error
	Fail(ctx context.Context, id string, at time.Time) error
	FoldBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	PendingWithdrawTotal(ctx context.Context, accountID string) (decimal.Decimal, error)
	// ReservePool serializes pool reservations until the unit of work ends
	// and returns the pending withdraw total across all accounts.
	ReservePool(ctx context.Context) (decimal.Decimal, error)
	CountBetsSince(ctx context.Context, accountID string, since time.Time) (int, error)
	// Recent returns the newest entries first.
	Recent(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
	ListPendingWithdrawals(ctx context.Context, before time.Time, limit int) ([]ledger.Entry, error)
}
