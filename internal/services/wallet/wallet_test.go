package wallet

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/flipledger/internal/chain/chaintest"
	"github.com/fastprodman/flipledger/internal/config"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/fastprodman/flipledger/internal/repos/memstore"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "MintX"

// addr builds a valid base58 public key filled with b.
func addr(b byte) string {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, solana.PublicKeyLength)).String()
}

// sigRef builds a distinct base58 transaction signature for n.
func sigRef(n int) string {
	var sig solana.Signature
	sig[0] = 0x5A
	binary.BigEndian.PutUint32(sig[60:], uint32(n))

	return sig.String()
}

var (
	poolOwner = addr(0xEE)
	poolATA   = addr(0xEF)
	userA     = addr(0x0A)
	userB     = addr(0x0B)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now ticks a millisecond per call so entries keep a strict order.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Millisecond)

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type seqDrawer struct {
	mu   sync.Mutex
	vals []float64
	i    int
}

func (d *seqDrawer) Draw() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.vals[d.i%len(d.vals)]
	d.i++

	return v, nil
}

type fixture struct {
	store  *memstore.Store
	chain  *chaintest.Fake
	clock  *fakeClock
	engine *Engine
}

func testPolicy() Policy {
	return Policy{
		Mint:             testMint,
		PoolOwner:        poolOwner,
		PoolTokenAccount: poolATA,
		DepositFee:       decimal.RequireFromString("0.05"),
		DefaultBalance:   decimal.Zero,
		MaxWithdraw:      decimal.NewFromInt(1000),
		MaxBet:           decimal.NewFromInt(100),
		WinThreshold:     0.51,
		BetLimit:         30,
		BetWindow:        time.Minute,
		ExternalTimeout:  time.Second,
		CommitTimeout:    time.Second,
	}
}

func newFixture(t *testing.T, tweak ...func(*Policy, *Deps)) *fixture {
	t.Helper()

	f := &fixture{
		store: memstore.New(),
		chain: chaintest.New(),
		clock: &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
	}

	policy := testPolicy()
	deps := Deps{Store: f.store, Reader: f.chain, Treasury: f.chain, Payer: f.chain}

	for _, fn := range tweak {
		fn(&policy, &deps)
	}

	f.engine = New(deps, policy)
	f.engine.now = f.clock.Now

	return f
}

func (f *fixture) account(t *testing.T, subject string) ledger.Account {
	t.Helper()

	acc, _, err := f.engine.EnsureAccount(context.Background(), ledger.Identity{Subject: subject, Email: subject + "@example.com"})
	require.NoError(t, err)

	return acc
}

// fund credits amount+fee from sender so the account ends up with amount.
func (f *fixture) fund(t *testing.T, accountID, sender string, n int, amount string) {
	t.Helper()

	gross := decimal.RequireFromString(amount).Add(f.engine.policy.DepositFee)
	f.chain.AddTransfer(sigRef(n), testMint, sender, poolOwner, gross)

	_, err := f.engine.Deposit(context.Background(), accountID, ManualDeposit{ExternalRef: sigRef(n)})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()

	sum, err := f.engine.GetAccount(context.Background(), accountID)
	require.NoError(t, err)

	return sum.Account.Balance
}

func (f *fixture) setCachedBalance(t *testing.T, accountID string, d decimal.Decimal) {
	t.Helper()

	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx repos.Tx) error {
		return tx.Accounts().SetBalance(ctx, accountID, d)
	})
	require.NoError(t, err)
}

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	base := config.PolicyConfig{
		DepositFee:     "0.05",
		DefaultBalance: "0",
		MaxWithdraw:    "1000",
		MaxBet:         "100",
		WinThreshold:   0.51,
		BetLimit:       30,
		BetWindow:      time.Minute,
		CommitTimeout:  10 * time.Second,
	}
	chainCfg := config.ChainConfig{Mint: testMint, PoolOwner: poolOwner, PoolTokenAccount: poolATA, Timeout: 15 * time.Second}

	p, err := NewPolicy(base, chainCfg)
	require.NoError(t, err)
	assert.Equal(t, "0.05", p.DepositFee.String())
	assert.Equal(t, poolOwner, p.PoolOwner)
	assert.Equal(t, poolATA, p.PoolTokenAccount)
	assert.Equal(t, 15*time.Second, p.ExternalTimeout)

	tests := []struct {
		name   string
		mutate func(*config.PolicyConfig)
	}{
		{"bad_fee", func(c *config.PolicyConfig) { c.DepositFee = "abc" }},
		{"negative_max_bet", func(c *config.PolicyConfig) { c.MaxBet = "-1" }},
		{"threshold_zero", func(c *config.PolicyConfig) { c.WinThreshold = 0 }},
		{"threshold_one", func(c *config.PolicyConfig) { c.WinThreshold = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			tt.mutate(&cfg)

			_, err := NewPolicy(cfg, chainCfg)
			require.Error(t, err)
		})
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	limit := decimal.NewFromInt(100)

	tests := []struct {
		in string
		ok bool
	}{
		{"0.01", true},
		{"100", true},
		{"12.50", true},
		{"0", false},
		{"-1", false},
		{"100.01", false},
		{"1.001", false},
	}

	for _, tt := range tests {
		err := validateAmount(decimal.RequireFromString(tt.in), limit)
		if tt.ok {
			assert.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidAmount, tt.in)
		}
	}

	_, err := ParseAmount("ten")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestValidateAddressAndReference(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateAddress(userA))
	require.ErrorIs(t, ValidateAddress(""), ErrInvalidAddress)
	require.ErrorIs(t, ValidateAddress("0OIl"), ErrInvalidAddress)
	require.ErrorIs(t, ValidateAddress("abc"), ErrInvalidAddress, "decodes to fewer than 32 bytes")
	require.ErrorIs(t, ValidateAddress(sigRef(1)), ErrInvalidAddress)

	require.NoError(t, validateReference(sigRef(1)))
	require.ErrorIs(t, validateReference(""), ErrInvalidReference)
	require.ErrorIs(t, validateReference("sig-1"), ErrInvalidReference)
	require.ErrorIs(t, validateReference(userA), ErrInvalidReference, "a public key is not a signature")
	require.ErrorIs(t, validateReference(string(bytes.Repeat([]byte("z"), 129))), ErrInvalidReference)
}
