package entries

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/flipledger/internal/infra/pgutils"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos/entries"
)

var _ entries.Entries = (*entriesRepo)(nil)

const (
	entryColumns = `
	id, account_id, kind, amount, external_ref,
	counterparty_from, counterparty_to, status, created_at, updated_at`

	externalRefKey = "ledger_entries_external_ref_key"

	// signedAmount folds an entry into its balance effect.
	signedAmount = `CASE WHEN kind IN ('deposit', 'bet_win') THEN amount ELSE -amount END`
)

type entriesRepo struct{ q pgutils.Querier }

func New(q pgutils.Querier) *entriesRepo {
	return &entriesRepo{q: q}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		e             ledger.Entry
		kind, status  string
		ref, from, to sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.AccountID, &kind, &e.Amount, &ref,
		&from, &to, &status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Kind = ledger.Kind(kind)
	e.Status = ledger.Status(status)
	e.ExternalRef = nullable(ref)
	e.From = nullable(from)
	e.To = nullable(to)

	return e, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}

	return &s.String
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	//nolint:errcheck
	defer rows.Close()

	var out []ledger.Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return out, nil
}
