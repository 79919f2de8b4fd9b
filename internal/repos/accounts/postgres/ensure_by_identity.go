package accounts

import (
	"context"
	"fmt"

	"github.com/fastprodman/flipledger/internal/ledger"
)

func (r *accountsRepo) EnsureByIdentity(ctx context.Context, id string, identity ledger.Identity) (ledger.Account, bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, subject, email, display_name, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject) DO NOTHING
	`, id, identity.Subject, identity.Email, identity.DisplayName, identity.AvatarURL)
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("insert account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("rows affected: %w", err)
	}

	account, err := scanAccount(r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE subject = $1
	`, identity.Subject))
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("load account by subject: %w", err)
	}

	return account, affected == 1, nil
}
