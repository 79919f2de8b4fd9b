// Package repos defines the unit of work every ledger mutation runs in.
package repos

import (
	"context"

	"github.com/fastprodman/flipledger/internal/repos/accounts"
	"github.com/fastprodman/flipledger/internal/repos/entries"
	"github.com/fastprodman/flipledger/internal/repos/outbox"
)

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Accounts() accounts.Accounts
	Entries() entries.Entries
	Outbox() outbox.Outbox
}

// Store runs fn inside a transaction: it commits when fn returns nil and
// rolls back everything fn wrote otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
