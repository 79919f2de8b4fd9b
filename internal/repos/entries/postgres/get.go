package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/flipledger/internal/ledger"
)

func (r *entriesRepo) Get(ctx context.Context, id string) (ledger.Entry, error) {
	entry, err := scanEntry(r.q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, ledger.ErrEntryNotFound
		}

		return ledger.Entry{}, fmt.Errorf("get entry: %w", err)
	}

	return entry, nil
}

func (r *entriesRepo) ExistsByExternalRef(ctx context.Context, ref string) (bool, error) {
	var exists bool

	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE external_ref = $1)
	`, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check external ref: %w", err)
	}

	return exists, nil
}
