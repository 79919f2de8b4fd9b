package pgutils_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/fastprodman/flipledger/internal/infra/pgtestutil"
	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countAccounts(t *testing.T, db *sql.DB) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT count(*) FROM accounts`).Scan(&n))

	return n
}

func insertAccount(ctx context.Context, tx *sql.Tx, id, subject string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts (id, subject) VALUES ($1, $2)`, id, subject)
	return err
}

func TestWithTx(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := pgutils.WithTx(ctx, db, nil, func(tx *sql.Tx) error {
		return insertAccount(ctx, tx, "7b0c3f4e-0000-4000-8000-000000000001", "commit")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countAccounts(t, db))

	err = pgutils.WithTx(ctx, db, nil, func(tx *sql.Tx) error {
		require.NoError(t, insertAccount(ctx, tx, "7b0c3f4e-0000-4000-8000-000000000002", "rollback"))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, countAccounts(t, db))

	assert.Panics(t, func() {
		_ = pgutils.WithTx(ctx, db, nil, func(tx *sql.Tx) error {
			require.NoError(t, insertAccount(ctx, tx, "7b0c3f4e-0000-4000-8000-000000000003", "panic"))
			panic("boom")
		})
	})
	assert.Equal(t, 1, countAccounts(t, db))

	err = pgutils.WithTx(ctx, db, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		return insertAccount(ctx, tx, "7b0c3f4e-0000-4000-8000-000000000004", "readonly")
	})
	require.Error(t, err)
	assert.Equal(t, 1, countAccounts(t, db))
}
