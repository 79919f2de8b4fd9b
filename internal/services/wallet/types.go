package wallet

import (
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// DepositRequest is either ManualDeposit or AutoRescan.
type DepositRequest interface {
	depositRequest()
}

// ManualDeposit asks to credit the transfer identified by ExternalRef.
type ManualDeposit struct {
	ExternalRef string
}

// AutoRescan asks to refresh the balance of an already bound account.
type AutoRescan struct{}

func (ManualDeposit) depositRequest() {}
func (AutoRescan) depositRequest()    {}

type DepositResult struct {
	EntryID      string
	Credited     decimal.Decimal
	Balance      decimal.Decimal
	FirstDeposit bool
}

type WithdrawResult struct {
	EntryID     string
	Amount      decimal.Decimal
	To          string
	ExternalRef string
	Balance     decimal.Decimal
}

type ReconcileResult struct {
	Previous decimal.Decimal
	New      decimal.Decimal
}

// Changed reports whether the cached balance had drifted.
func (r ReconcileResult) Changed() bool {
	return !r.Previous.Equal(r.New)
}

type BetResult struct {
	EntryID string
	Won     bool
	Draw    float64
	Stake   decimal.Decimal
	Balance decimal.Decimal
}

// Summary is an account with the part of its balance not held by pending
// withdrawals.
type Summary struct {
	Account   ledger.Account
	Available decimal.Decimal
}

type RecoveryResult struct {
	Completed int
	Failed    int
	Skipped   int
}

// clock is swapped in tests.
type clock func() time.Time
