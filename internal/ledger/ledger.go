// Package ledger holds the account and ledger entry model shared by the
// storage layer and the wallet engine.
package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindBetWin   Kind = "bet_win"
	KindBetLoss  Kind = "bet_loss"
)

// Valid reports whether k is one of the four supported entry kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindBetWin, KindBetLoss:
		return true
	default:
		return false
	}
}

// Credit reports whether entries of kind k add to the balance.
func (k Kind) Credit() bool {
	return k == KindDeposit || k == KindBetWin
}

func (k Kind) IsBet() bool {
	return k == KindBetWin || k == KindBetLoss
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrDuplicateExternalRef = errors.New("duplicate external reference")
	ErrAccountNotFound      = errors.New("account not found")
	ErrEntryNotFound        = errors.New("ledger entry not found")
	ErrEntryNotPending      = errors.New("ledger entry is not pending")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAddressInUse         = errors.New("address bound to another account")
	ErrAlreadyBound         = errors.New("deposit address already bound")
)

// Identity is what the identity provider vouches for.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

type Account struct {
	ID                  string
	Subject             string
	Email               string
	DisplayName         string
	AvatarURL           string
	BoundDepositAddress *string
	PayoutAddress       *string
	Balance             decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Entry is one accounted event. Amount is a magnitude; the sign comes from Kind.
type Entry struct {
	ID          string
	AccountID   string
	Kind        Kind
	Amount      decimal.Decimal
	ExternalRef *string
	From        *string
	To          *string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Signed returns the balance effect of e regardless of its status.
func (e Entry) Signed() decimal.Decimal {
	if e.Kind.Credit() {
		return e.Amount
	}

	return e.Amount.Neg()
}

// Step is one point of an audit replay.
type Step struct {
	Entry   Entry
	Balance decimal.Decimal
}

// Replay walks the completed entries in timestamp order and returns the
// running balance after each of them.
func Replay(entries []Entry) []Step {
	ordered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == StatusCompleted {
			ordered = append(ordered, e)
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	steps := make([]Step, 0, len(ordered))
	running := decimal.Zero

	for _, e := range ordered {
		running = running.Add(e.Signed())
		steps = append(steps, Step{Entry: e, Balance: running})
	}

	return steps
}

// Fold sums the signed amounts of the completed entries.
func Fold(entries []Entry) decimal.Decimal {
	steps := Replay(entries)
	if len(steps) == 0 {
		return decimal.Zero
	}

	return steps[len(steps)-1].Balance
}
