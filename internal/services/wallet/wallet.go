// Package wallet is the ledger engine: deposits verified against the chain,
// withdrawals paid out of the pool, bets, and balance reconciliation. Every
// mutation runs in one repos.Store unit of work under the account row lock.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/flipledger/internal/chain"
	"github.com/fastprodman/flipledger/internal/config"
	"github.com/fastprodman/flipledger/internal/events"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type Policy struct {
	Mint             string
	PoolOwner        string
	PoolTokenAccount string

	DepositFee     decimal.Decimal
	DefaultBalance decimal.Decimal
	MaxWithdraw    decimal.Decimal
	MaxBet         decimal.Decimal

	WinThreshold float64
	BetLimit     int
	BetWindow    time.Duration

	ExternalTimeout time.Duration
	CommitTimeout   time.Duration
}

// NewPolicy parses the policy and chain settings.
func NewPolicy(p config.PolicyConfig, c config.ChainConfig) (Policy, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s %q: %w", name, v, err)
		}

		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("%s must not be negative: %s", name, v)
		}

		return d, nil
	}

	fee, err := parse("deposit fee", p.DepositFee)
	if err != nil {
		return Policy{}, err
	}

	def, err := parse("default balance", p.DefaultBalance)
	if err != nil {
		return Policy{}, err
	}

	maxWithdraw, err := parse("max withdraw", p.MaxWithdraw)
	if err != nil {
		return Policy{}, err
	}

	maxBet, err := parse("max bet", p.MaxBet)
	if err != nil {
		return Policy{}, err
	}

	if p.WinThreshold <= 0 || p.WinThreshold >= 1 {
		return Policy{}, fmt.Errorf("win threshold must be in (0, 1): %v", p.WinThreshold)
	}

	return Policy{
		Mint:             c.Mint,
		PoolOwner:        c.PoolOwner,
		PoolTokenAccount: c.PoolTokenAccount,
		DepositFee:       fee,
		DefaultBalance:   def,
		MaxWithdraw:      maxWithdraw,
		MaxBet:           maxBet,
		WinThreshold:     p.WinThreshold,
		BetLimit:         p.BetLimit,
		BetWindow:        p.BetWindow,
		ExternalTimeout:  c.Timeout,
		CommitTimeout:    p.CommitTimeout,
	}, nil
}

// isPool reports whether address is the treasury owner or its token account.
func (p Policy) isPool(address string) bool {
	return address == p.PoolOwner || (p.PoolTokenAccount != "" && address == p.PoolTokenAccount)
}

// Deps are the collaborators of the engine. Drawer defaults to CryptoDrawer.
type Deps struct {
	Store    repos.Store
	Reader   chain.Reader
	Treasury chain.Treasury
	Payer    chain.Payer
	Drawer   Drawer
}

type Engine struct {
	store    repos.Store
	reader   chain.Reader
	treasury chain.Treasury
	payer    chain.Payer
	drawer   Drawer
	policy   Policy
	now      clock
}

func New(deps Deps, policy Policy) *Engine {
	drawer := deps.Drawer
	if drawer == nil {
		drawer = CryptoDrawer{}
	}

	if policy.ExternalTimeout <= 0 {
		policy.ExternalTimeout = 15 * time.Second
	}

	if policy.CommitTimeout <= 0 {
		policy.CommitTimeout = 10 * time.Second
	}

	return &Engine{
		store:    deps.Store,
		reader:   deps.Reader,
		treasury: deps.Treasury,
		payer:    deps.Payer,
		drawer:   drawer,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// external bounds one collaborator call.
func (e *Engine) external(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.policy.ExternalTimeout)
}

// detached is used once an external effect happened: the local record has to
// reach a terminal state even if the caller went away.
func (e *Engine) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.policy.CommitTimeout)
}

// emit writes the ledger event for entry in the same unit of work.
func (e *Engine) emit(ctx context.Context, tx repos.Tx, entry ledger.Entry) error {
	msg, err := events.Message(entry, e.now())
	if err != nil {
		return err
	}

	err = tx.Outbox().Insert(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	return nil
}

// available is the balance minus pending withdrawals.
func available(ctx context.Context, tx repos.Tx, acc ledger.Account) (decimal.Decimal, error) {
	pending, err := tx.Entries().PendingWithdrawTotal(ctx, acc.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum pending withdrawals: %w", err)
	}

	return acc.Balance.Sub(pending), nil
}
