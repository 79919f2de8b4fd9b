// Package solanarpc reads SPL token transfers from a Solana JSON-RPC node.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/flipledger/internal/chain"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

var (
	_ chain.Reader   = (*Client)(nil)
	_ chain.Treasury = (*Client)(nil)
)

const commitment = rpc.CommitmentConfirmed

// Client adapts the solana-go RPC client to the chain interfaces.
type Client struct {
	rpc              *rpc.Client
	poolTokenAccount solana.PublicKey
	timeout          time.Duration
}

// NewClient talks to endpoint. poolTokenAccount is the treasury's token
// account for the configured mint and backs PoolBalance. Every call is
// bounded by timeout.
func NewClient(endpoint, poolTokenAccount string, timeout time.Duration) (*Client, error) {
	pool, err := solana.PublicKeyFromBase58(poolTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("parse pool token account %q: %w", poolTokenAccount, err)
	}

	return &Client{
		rpc:              rpc.New(endpoint),
		poolTokenAccount: pool,
		timeout:          timeout,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.timeout)
}

// GetTransaction fetches a confirmed transaction by signature. A reference
// that is not a signature cannot exist on chain and reports ErrNotFound.
func (c *Client) GetTransaction(ctx context.Context, ref string) (chain.Transaction, error) {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("%w: %v", chain.ErrNotFound, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	version := uint64(0)

	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &version,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return chain.Transaction{}, chain.ErrNotFound
	}
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("get transaction %s: %w", ref, err)
	}

	if res == nil || res.Meta == nil {
		return chain.Transaction{}, chain.ErrNotFound
	}

	tx := chain.Transaction{Ref: ref, Success: true}

	if res.BlockTime != nil {
		tx.BlockTime = time.Unix(int64(*res.BlockTime), 0).UTC()
	}

	if res.Meta.Err != nil {
		tx.Success = false
		tx.Err = fmt.Sprint(res.Meta.Err)
	}

	tx.Changes, err = pairBalances(res.Meta.PreTokenBalances, res.Meta.PostTokenBalances)
	if err != nil {
		return chain.Transaction{}, err
	}

	return tx, nil
}

func uiAmount(a *rpc.UiTokenAmount) (decimal.Decimal, error) {
	if a == nil {
		return decimal.Zero, nil
	}

	raw, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token amount %q: %w", a.Amount, err)
	}

	return raw.Shift(-int32(a.Decimals)), nil
}

// pairBalances joins pre and post balances on the account index. An account
// missing on one side held zero there.
func pairBalances(pre, post []rpc.TokenBalance) ([]chain.TokenBalanceChange, error) {
	byIndex := make(map[uint16]*chain.TokenBalanceChange)
	order := make([]uint16, 0, len(post))

	get := func(b rpc.TokenBalance) *chain.TokenBalanceChange {
		ch, ok := byIndex[b.AccountIndex]
		if !ok {
			ch = &chain.TokenBalanceChange{Mint: b.Mint.String()}
			if b.Owner != nil {
				ch.Owner = b.Owner.String()
			}

			byIndex[b.AccountIndex] = ch
			order = append(order, b.AccountIndex)
		}

		return ch
	}

	for _, b := range pre {
		amount, err := uiAmount(b.UiTokenAmount)
		if err != nil {
			return nil, err
		}

		get(b).Before = amount
	}

	for _, b := range post {
		amount, err := uiAmount(b.UiTokenAmount)
		if err != nil {
			return nil, err
		}

		get(b).After = amount
	}

	out := make([]chain.TokenBalanceChange, 0, len(order))
	for _, idx := range order {
		out = append(out, *byIndex[idx])
	}

	return out, nil
}

// PoolBalance reads the treasury token account balance.
func (c *Client) PoolBalance(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpc.GetTokenAccountBalance(ctx, c.poolTokenAccount, commitment)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get pool balance: %w", err)
	}

	if res == nil || res.Value == nil {
		return decimal.Zero, errors.New("get pool balance: empty result")
	}

	return uiAmount(res.Value)
}
