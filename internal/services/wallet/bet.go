package wallet

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/google/uuid"
)

// Drawer yields a uniform value in [0, 1).
type Drawer interface {
	Draw() (float64, error)
}

// CryptoDrawer draws 53 bits from crypto/rand.
type CryptoDrawer struct{}

func (CryptoDrawer) Draw() (float64, error) {
	var b [8]byte

	_, err := rand.Read(b[:])
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}

	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53), nil
}

// PlaceBet settles one coin flip. The bet wins when the draw is below the
// configured threshold and moves the balance by the stake either way.
func (e *Engine) PlaceBet(ctx context.Context, accountID string, stake string) (BetResult, error) {
	amount, err := ParseAmount(stake)
	if err != nil {
		return BetResult{}, err
	}

	err = validateAmount(amount, e.policy.MaxBet)
	if err != nil {
		return BetResult{}, err
	}

	var res BetResult

	err = e.store.WithTx(ctx, func(ctx context.Context, tx repos.Tx) error {
		acc, err := tx.Accounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		now := e.now()

		if e.policy.BetLimit > 0 {
			n, err := tx.Entries().CountBetsSince(ctx, accountID, now.Add(-e.policy.BetWindow))
			if err != nil {
				return fmt.Errorf("count bets: %w", err)
			}

			if n > e.policy.BetLimit {
				return ErrRateLimited
			}
		}

		avail, err := available(ctx, tx, acc)
		if err != nil {
			return err
		}

		if amount.GreaterThan(avail) {
			return ErrInsufficientBalance
		}

		draw, err := e.drawer.Draw()
		if err != nil {
			return fmt.Errorf("draw: %w", err)
		}

		won := draw < e.policy.WinThreshold

		entry := ledger.Entry{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      ledger.KindBetLoss,
			Amount:    amount,
			Status:    ledger.StatusCompleted,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if won {
			entry.Kind = ledger.KindBetWin
		}

		err = tx.Entries().Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("append bet: %w", err)
		}

		if won {
			err = tx.Accounts().IncreaseBalance(ctx, accountID, amount)
		} else {
			err = tx.Accounts().DecreaseBalance(ctx, accountID, amount)
		}
		if err != nil {
			return fmt.Errorf("settle bet: %w", err)
		}

		res = BetResult{
			EntryID: entry.ID,
			Won:     won,
			Draw:    draw,
			Stake:   amount,
			Balance: acc.Balance.Add(entry.Signed()),
		}

		return e.emit(ctx, tx, entry)
	})
	if err != nil {
		return BetResult{}, fmt.Errorf("place bet: %w", err)
	}

	slog.DebugContext(ctx, "bet settled", "account_id", accountID, "entry_id", res.EntryID, "won", res.Won)

	return res, nil
}
