// Package chaintest provides an in-memory chain for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastprodman/flipledger/internal/chain"
	"github.com/shopspring/decimal"
)

var (
	_ chain.Reader   = (*Fake)(nil)
	_ chain.Treasury = (*Fake)(nil)
	_ chain.Payer    = (*Fake)(nil)
)

// Fake plays the reader, the treasury and the payout signer. Zero values
// answer "not found" and an empty pool.
type Fake struct {
	mu sync.Mutex

	txs     map[string]chain.Transaction
	pool    decimal.Decimal
	payouts map[string]string

	// ReadErr, PoolErr, TransferErr and FindErr short-circuit the calls.
	ReadErr     error
	PoolErr     error
	TransferErr error
	FindErr     error
	// Block makes the calls wait for ctx to end.
	Block bool
	// OnTransfer runs before a successful payout is recorded.
	OnTransfer func(ctx context.Context, req chain.PayoutRequest)

	ReadCalls     int
	PoolCalls     int
	TransferCalls int
}

func New() *Fake {
	return &Fake{
		txs:     make(map[string]chain.Transaction),
		payouts: make(map[string]string),
	}
}

func (f *Fake) AddTransaction(tx chain.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.txs[tx.Ref] = tx
}

// AddTransfer records a successful transfer of amount of mint from sender
// to receiver.
func (f *Fake) AddTransfer(ref, mint, sender, receiver string, amount decimal.Decimal) {
	start := decimal.NewFromInt(1_000_000)

	f.AddTransaction(chain.Transaction{
		Ref:     ref,
		Success: true,
		Changes: []chain.TokenBalanceChange{
			{Mint: mint, Owner: sender, Before: start, After: start.Sub(amount)},
			{Mint: mint, Owner: receiver, Before: start, After: start.Add(amount)},
		},
	})
}

func (f *Fake) SetPool(amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pool = amount
}

func (f *Fake) Pool() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pool
}

// SetPayout pretends a payout for reference already happened.
func (f *Fake) SetPayout(reference, signature string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.payouts[reference] = signature
}

func (f *Fake) Payouts() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string, len(f.payouts))
	for k, v := range f.payouts {
		out[k] = v
	}

	return out
}

func (f *Fake) wait(ctx context.Context) error {
	f.mu.Lock()
	block := f.Block
	f.mu.Unlock()

	if !block {
		return nil
	}

	<-ctx.Done()

	return ctx.Err()
}

func (f *Fake) GetTransaction(ctx context.Context, ref string) (chain.Transaction, error) {
	err := f.wait(ctx)
	if err != nil {
		return chain.Transaction{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ReadCalls++

	if f.ReadErr != nil {
		return chain.Transaction{}, f.ReadErr
	}

	tx, ok := f.txs[ref]
	if !ok {
		return chain.Transaction{}, chain.ErrNotFound
	}

	return tx, nil
}

func (f *Fake) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	err := f.wait(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.PoolCalls++

	if f.PoolErr != nil {
		return decimal.Zero, f.PoolErr
	}

	return f.pool, nil
}

func (f *Fake) TransferAsset(ctx context.Context, req chain.PayoutRequest) (string, error) {
	err := f.wait(ctx)

	f.mu.Lock()
	f.TransferCalls++
	hook := f.OnTransfer
	transferErr := f.TransferErr
	f.mu.Unlock()

	if err != nil {
		return "", err
	}

	if transferErr != nil {
		return "", transferErr
	}

	if hook != nil {
		hook(ctx, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if sig, ok := f.payouts[req.Reference]; ok {
		return sig, nil
	}

	sig := fmt.Sprintf("payout-%s", req.Reference)
	f.payouts[req.Reference] = sig
	f.pool = f.pool.Sub(req.Amount)

	return sig, nil
}

func (f *Fake) FindPayout(ctx context.Context, reference string) (string, bool, error) {
	err := f.wait(ctx)
	if err != nil {
		return "", false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FindErr != nil {
		return "", false, f.FindErr
	}

	sig, ok := f.payouts[reference]

	return sig, ok, nil
}
