// Package pgstore runs units of work as Postgres transactions.
package pgstore

import (
	"context"
	"database/sql"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/fastprodman/flipledger/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/flipledger/internal/repos/accounts/postgres"
	"github.com/fastprodman/flipledger/internal/repos/entries"
	pgentries "github.com/fastprodman/flipledger/internal/repos/entries/postgres"
	"github.com/fastprodman/flipledger/internal/repos/outbox"
	pgoutbox "github.com/fastprodman/flipledger/internal/repos/outbox/postgres"
)

var _ repos.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repos.Tx) error) error {
	return pgutils.WithTx(ctx, s.db, nil, func(sqlTx *sql.Tx) error {
		return fn(ctx, &unit{
			accounts: pgaccounts.New(sqlTx),
			entries:  pgentries.New(sqlTx),
			outbox:   pgoutbox.New(sqlTx),
		})
	})
}

type unit struct {
	accounts accounts.Accounts
	entries  entries.Entries
	outbox   outbox.Outbox
}

func (u *unit) Accounts() accounts.Accounts { return u.accounts }
func (u *unit) Entries() entries.Entries    { return u.entries }
func (u *unit) Outbox() outbox.Outbox       { return u.outbox }
