package wallet

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoDrawer_Distribution(t *testing.T) {
	t.Parallel()

	const (
		draws     = 100_000
		threshold = 0.51
	)

	var (
		d    CryptoDrawer
		wins int
	)

	for range draws {
		v, err := d.Draw()
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)

		if v < threshold {
			wins++
		}
	}

	// Five standard deviations of a binomial(100k, 0.51) fraction is ~0.008.
	frac := float64(wins) / draws
	assert.InDelta(t, threshold, frac, 5*math.Sqrt(threshold*(1-threshold)/draws))
}

func TestPlaceBet_ThresholdIsStrict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(p *Policy, d *Deps) {
		p.DefaultBalance = decimal.NewFromInt(10)
		d.Drawer = &seqDrawer{vals: []float64{0.509999, 0.51, 0}}
	})
	acc := f.account(t, "sub-1")

	want := []bool{true, false, true}
	for i, w := range want {
		res, err := f.engine.PlaceBet(context.Background(), acc.ID, "1")
		require.NoError(t, err)
		assert.Equal(t, w, res.Won, "bet %d", i)
	}

	assert.Equal(t, "11", f.balance(t, acc.ID).String())
}

func TestPlaceBet_OneEntryPerBetWithMatchingSign(t *testing.T) {
	t.Parallel()

	const bets = 2000

	f := newFixture(t, func(p *Policy, _ *Deps) {
		p.DefaultBalance = decimal.NewFromInt(1_000_000)
		p.BetLimit = 0
	})
	ctx := context.Background()
	acc := f.account(t, "sub-1")

	results := make(map[string]BetResult, bets)
	wins := 0

	for range bets {
		res, err := f.engine.PlaceBet(ctx, acc.ID, "2.50")
		require.NoError(t, err)
		assert.Equal(t, res.Won, res.Draw < 0.51)

		results[res.EntryID] = res
		if res.Won {
			wins++
		}
	}

	var betEntries int

	for _, e := range f.store.AccountEntries(acc.ID) {
		if !e.Kind.IsBet() {
			continue
		}

		betEntries++

		res, ok := results[e.ID]
		require.True(t, ok, "entry %s has no bet", e.ID)
		assert.Equal(t, res.Won, e.Kind == ledger.KindBetWin)
		assert.Equal(t, res.Won, e.Signed().IsPositive())
		assert.Equal(t, "2.5", e.Amount.String())
		assert.Equal(t, ledger.StatusCompleted, e.Status)
	}

	assert.Equal(t, bets, betEntries)
	assert.InDelta(t, 0.51, float64(wins)/bets, 0.06)

	folded := ledger.Fold(f.store.AccountEntries(acc.ID))
	assert.True(t, folded.Equal(f.balance(t, acc.ID)), "fold %s != balance %s", folded, f.balance(t, acc.ID))
}

func TestPlaceBet_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(p *Policy, _ *Deps) { p.DefaultBalance = decimal.NewFromInt(5) })
	acc := f.account(t, "sub-1")

	tests := []struct {
		stake   string
		wantErr error
	}{
		{"0", ErrInvalidAmount},
		{"0.001", ErrInvalidAmount},
		{"100.01", ErrInvalidAmount},
		{"x", ErrInvalidAmount},
		{"5.01", ErrInsufficientBalance},
	}

	for _, tt := range tests {
		_, err := f.engine.PlaceBet(context.Background(), acc.ID, tt.stake)
		require.ErrorIs(t, err, tt.wantErr, tt.stake)
	}

	_, err := f.engine.PlaceBet(context.Background(), "missing", "1")
	require.ErrorIs(t, err, ErrAccountNotFound)

	assert.Equal(t, "5", f.balance(t, acc.ID).String())
	assert.Len(t, f.store.AccountEntries(acc.ID), 1)
}

func TestPlaceBet_RateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(p *Policy, _ *Deps) {
		p.DefaultBalance = decimal.NewFromInt(100)
		p.BetLimit = 3
		p.BetWindow = time.Minute
	})
	ctx := context.Background()
	acc := f.account(t, "sub-1")

	// The limit is exceeded only once more than three bets sit in the
	// window, so the fourth still settles.
	for range 4 {
		_, err := f.engine.PlaceBet(ctx, acc.ID, "1")
		require.NoError(t, err)
	}

	before := f.balance(t, acc.ID)

	_, err := f.engine.PlaceBet(ctx, acc.ID, "1")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, before.Equal(f.balance(t, acc.ID)))

	f.clock.Advance(time.Minute)

	_, err = f.engine.PlaceBet(ctx, acc.ID, "1")
	require.NoError(t, err)
}

func TestPlaceBet_ConcurrentNeverOverdraws(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(p *Policy, d *Deps) {
		p.DefaultBalance = decimal.NewFromInt(10)
		p.BetLimit = 0
		d.Drawer = &seqDrawer{vals: []float64{0.99}}
	})
	acc := f.account(t, "sub-1")

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)

	for range 40 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.engine.PlaceBet(context.Background(), acc.ID, "1")

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 30, rejected)
	assert.True(t, f.balance(t, acc.ID).IsZero())
}
