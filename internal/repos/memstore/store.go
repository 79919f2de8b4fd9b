// Package memstore is an in-process repos.Store. It enforces the same
// constraints as the Postgres schema and serializes all units of work.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/repos"
	"github.com/fastprodman/flipledger/internal/repos/accounts"
	"github.com/fastprodman/flipledger/internal/repos/entries"
	"github.com/fastprodman/flipledger/internal/repos/outbox"
	"github.com/shopspring/decimal"
)

var _ repos.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	accounts  map[string]ledger.Account
	bySubject map[string]string
	byDeposit map[string]string

	entries  []ledger.Entry
	entryPos map[string]int
	byRef    map[string]string

	messages []outbox.Message
	nextMsg  int64
}

func New() *Store {
	return &Store{
		accounts:  make(map[string]ledger.Account),
		bySubject: make(map[string]string),
		byDeposit: make(map[string]string),
		entryPos:  make(map[string]int),
		byRef:     make(map[string]string),
	}
}

// WithTx holds the store lock for the whole unit of work. Writes are undone
// in reverse order when fn fails, panics or ctx ends before commit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repos.Tx) error) (err error) {
	err = ctx.Err()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	defer func() {
		t.done = true

		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()

	err = fn(ctx, t)
	if err != nil {
		t.rollback()
		return err
	}

	cerr := ctx.Err()
	if cerr != nil {
		t.rollback()
		return fmt.Errorf("commit tx: %w", cerr)
	}

	return nil
}

// AccountEntries returns a copy of the account's entries in append order.
func (s *Store) AccountEntries(accountID string) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.Entry

	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}

	return out
}

// Messages returns a copy of every outbox message in insertion order.
func (s *Store) Messages() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]outbox.Message(nil), s.messages...)
}

type tx struct {
	s    *Store
	undo []func()
	done bool
}

func (t *tx) Accounts() accounts.Accounts { return (*accountsTx)(t) }
func (t *tx) Entries() entries.Entries    { return (*entriesTx)(t) }
func (t *tx) Outbox() outbox.Outbox       { return (*outboxTx)(t) }

func (t *tx) onRollback(f func()) {
	t.undo = append(t.undo, f)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}

	t.undo = nil
}

func (t *tx) check() error {
	if t.done {
		return fmt.Errorf("memstore: unit of work already finished")
	}

	return nil
}

func (t *tx) putAccount(a ledger.Account) {
	prev := t.s.accounts[a.ID]
	t.onRollback(func() { t.s.accounts[a.ID] = prev })
	t.s.accounts[a.ID] = a
}

// --- accounts ---

type accountsTx tx

func (a *accountsTx) tx() *tx { return (*tx)(a) }

func (a *accountsTx) EnsureByIdentity(_ context.Context, id string, identity ledger.Identity) (ledger.Account, bool, error) {
	t := a.tx()
	if err := t.check(); err != nil {
		return ledger.Account{}, false, err
	}

	if existing, ok := t.s.bySubject[identity.Subject]; ok {
		return t.s.accounts[existing], false, nil
	}

	if _, ok := t.s.accounts[id]; ok {
		return ledger.Account{}, false, fmt.Errorf("insert account: duplicate id %s", id)
	}

	now := time.Now().UTC()
	acc := ledger.Account{
		ID:          id,
		Subject:     identity.Subject,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		AvatarURL:   identity.AvatarURL,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.s.accounts[id] = acc
	t.s.bySubject[identity.Subject] = id
	t.onRollback(func() {
		delete(t.s.accounts, id)
		delete(t.s.bySubject, identity.Subject)
	})

	return acc, true, nil
}

func (a *accountsTx) Get(_ context.Context, id string) (ledger.Account, error) {
	t := a.tx()
	if err := t.check(); err != nil {
		return ledger.Account{}, err
	}

	acc, ok := t.s.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}

	return acc, nil
}

// LockForUpdate is Get: the store lock already serializes units of work.
func (a *accountsTx) LockForUpdate(ctx context.Context, id string) (ledger.Account, error) {
	return a.Get(ctx, id)
}

func (a *accountsTx) update(id string, mutate func(*ledger.Account) error) error {
	t := a.tx()
	if err := t.check(); err != nil {
		return err
	}

	acc, ok := t.s.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}

	err := mutate(&acc)
	if err != nil {
		return err
	}

	acc.UpdatedAt = time.Now().UTC()
	t.putAccount(acc)

	return nil
}

func (a *accountsTx) SetBalance(_ context.Context, id string, balance decimal.Decimal) error {
	return a.update(id, func(acc *ledger.Account) error {
		if balance.IsNegative() {
			return fmt.Errorf("set balance: %w", ledger.ErrInsufficientFunds)
		}

		acc.Balance = balance

		return nil
	})
}

func (a *accountsTx) IncreaseBalance(_ context.Context, id string, amount decimal.Decimal) error {
	return a.update(id, func(acc *ledger.Account) error {
		acc.Balance = acc.Balance.Add(amount)
		return nil
	})
}

func (a *accountsTx) DecreaseBalance(_ context.Context, id string, amount decimal.Decimal) error {
	t := a.tx()
	if err := t.check(); err != nil {
		return err
	}

	acc, ok := t.s.accounts[id]
	if !ok || acc.Balance.LessThan(amount) {
		return ledger.ErrInsufficientFunds
	}

	return a.update(id, func(acc *ledger.Account) error {
		acc.Balance = acc.Balance.Sub(amount)
		return nil
	})
}

func (a *accountsTx) BindDepositAddress(_ context.Context, id, address string) error {
	t := a.tx()

	return a.update(id, func(acc *ledger.Account) error {
		if acc.BoundDepositAddress != nil {
			if *acc.BoundDepositAddress == address {
				return nil
			}

			return ledger.ErrAlreadyBound
		}

		if owner, ok := t.s.byDeposit[address]; ok && owner != id {
			return ledger.ErrAddressInUse
		}

		t.s.byDeposit[address] = id
		t.onRollback(func() { delete(t.s.byDeposit, address) })

		bound := address
		acc.BoundDepositAddress = &bound

		return nil
	})
}

func (a *accountsTx) ClearDepositAddress(_ context.Context, id string) error {
	t := a.tx()

	return a.update(id, func(acc *ledger.Account) error {
		if acc.BoundDepositAddress == nil {
			return nil
		}

		address := *acc.BoundDepositAddress
		delete(t.s.byDeposit, address)
		t.onRollback(func() { t.s.byDeposit[address] = id })

		acc.BoundDepositAddress = nil

		return nil
	})
}

func (a *accountsTx) SetPayoutAddress(_ context.Context, id string, address *string) error {
	return a.update(id, func(acc *ledger.Account) error {
		if address == nil {
			acc.PayoutAddress = nil
			return nil
		}

		payout := *address
		acc.PayoutAddress = &payout

		return nil
	})
}

// --- entries ---

type entriesTx tx

func (e *entriesTx) tx() *tx { return (*tx)(e) }

func (e *entriesTx) Append(_ context.Context, entry ledger.Entry) error {
	t := e.tx()
	if err := t.check(); err != nil {
		return err
	}

	if _, ok := t.s.accounts[entry.AccountID]; !ok {
		return ledger.ErrAccountNotFound
	}

	if _, ok := t.s.entryPos[entry.ID]; ok {
		return fmt.Errorf("insert entry: duplicate id %s", entry.ID)
	}

	if entry.ExternalRef != nil {
		if _, ok := t.s.byRef[*entry.ExternalRef]; ok {
			return ledger.ErrDuplicateExternalRef
		}

		ref := *entry.ExternalRef
		t.s.byRef[ref] = entry.ID
		t.onRollback(func() { delete(t.s.byRef, ref) })
	}

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	t.s.entryPos[entry.ID] = len(t.s.entries)
	t.s.entries = append(t.s.entries, entry)
	t.onRollback(func() {
		delete(t.s.entryPos, entry.ID)
		t.s.entries = t.s.entries[:len(t.s.entries)-1]
	})

	return nil
}

func (e *entriesTx) Get(_ context.Context, id string) (ledger.Entry, error) {
	t := e.tx()
	if err := t.check(); err != nil {
		return ledger.Entry{}, err
	}

	pos, ok := t.s.entryPos[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}

	return t.s.entries[pos], nil
}

func (e *entriesTx) ExistsByExternalRef(_ context.Context, ref string) (bool, error) {
	t := e.tx()
	if err := t.check(); err != nil {
		return false, err
	}

	_, ok := t.s.byRef[ref]

	return ok, nil
}

func (e *entriesTx) transition(id string, mutate func(*ledger.Entry) error) error {
	t := e.tx()
	if err := t.check(); err != nil {
		return err
	}

	pos, ok := t.s.entryPos[id]
	if !ok {
		return ledger.ErrEntryNotFound
	}

	prev := t.s.entries[pos]
	if prev.Status != ledger.StatusPending {
		return ledger.ErrEntryNotPending
	}

	next := prev

	err := mutate(&next)
	if err != nil {
		return err
	}

	t.s.entries[pos] = next
	t.onRollback(func() { t.s.entries[pos] = prev })

	return nil
}

func (e *entriesTx) Complete(_ context.Context, id, externalRef string, at time.Time) error {
	t := e.tx()

	return e.transition(id, func(entry *ledger.Entry) error {
		if externalRef != "" && (entry.ExternalRef == nil || *entry.ExternalRef != externalRef) {
			if _, taken := t.s.byRef[externalRef]; taken {
				return ledger.ErrDuplicateExternalRef
			}

			if entry.ExternalRef != nil {
				old := *entry.ExternalRef
				delete(t.s.byRef, old)
				t.onRollback(func() { t.s.byRef[old] = id })
			}

			t.s.byRef[externalRef] = id
			t.onRollback(func() { delete(t.s.byRef, externalRef) })

			ref := externalRef
			entry.ExternalRef = &ref
		}

		entry.Status = ledger.StatusCompleted
		entry.UpdatedAt = at

		return nil
	})
}

func (e *entriesTx) Fail(_ context.Context, id string, at time.Time) error {
	return e.transition(id, func(entry *ledger.Entry) error {
		entry.Status = ledger.StatusFailed
		entry.UpdatedAt = at

		return nil
	})
}

func (e *entriesTx) each(accountID string, fn func(ledger.Entry)) {
	for _, entry := range e.s.entries {
		if entry.AccountID == accountID {
			fn(entry)
		}
	}
}

func (e *entriesTx) FoldBalance(_ context.Context, accountID string) (decimal.Decimal, error) {
	if err := e.tx().check(); err != nil {
		return decimal.Zero, err
	}

	var own []ledger.Entry

	e.each(accountID, func(entry ledger.Entry) { own = append(own, entry) })

	return ledger.Fold(own), nil
}

func (e *entriesTx) PendingWithdrawTotal(_ context.Context, accountID string) (decimal.Decimal, error) {
	if err := e.tx().check(); err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero

	e.each(accountID, func(entry ledger.Entry) {
		if entry.Kind == ledger.KindWithdraw && entry.Status == ledger.StatusPending {
			sum = sum.Add(entry.Amount)
		}
	})

	return sum, nil
}

// ReservePool needs no extra lock: units of work are already serialized.
func (e *entriesTx) ReservePool(_ context.Context) (decimal.Decimal, error) {
	if err := e.tx().check(); err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero

	for _, entry := range e.s.entries {
		if entry.Kind == ledger.KindWithdraw && entry.Status == ledger.StatusPending {
			sum = sum.Add(entry.Amount)
		}
	}

	return sum, nil
}

func (e *entriesTx) CountBetsSince(_ context.Context, accountID string, since time.Time) (int, error) {
	if err := e.tx().check(); err != nil {
		return 0, err
	}

	n := 0

	e.each(accountID, func(entry ledger.Entry) {
		if entry.Kind.IsBet() && entry.CreatedAt.After(since) {
			n++
		}
	})

	return n, nil
}

func (e *entriesTx) Recent(_ context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	if err := e.tx().check(); err != nil {
		return nil, err
	}

	var out []ledger.Entry

	// Newest append first so equal timestamps keep insertion recency.
	for i := len(e.s.entries) - 1; i >= 0; i-- {
		if e.s.entries[i].AccountID == accountID {
			out = append(out, e.s.entries[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (e *entriesTx) ListPendingWithdrawals(_ context.Context, before time.Time, limit int) ([]ledger.Entry, error) {
	if err := e.tx().check(); err != nil {
		return nil, err
	}

	var out []ledger.Entry

	for _, entry := range e.s.entries {
		if entry.Kind == ledger.KindWithdraw && entry.Status == ledger.StatusPending && entry.CreatedAt.Before(before) {
			out = append(out, entry)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// --- outbox ---

type outboxTx tx

func (o *outboxTx) tx() *tx { return (*tx)(o) }

func (o *outboxTx) Insert(_ context.Context, msg outbox.Message) error {
	t := o.tx()
	if err := t.check(); err != nil {
		return err
	}

	t.s.nextMsg++
	msg.ID = t.s.nextMsg
	msg.Status = outbox.StatusPending
	msg.RetryCount = 0
	msg.Payload = append([]byte(nil), msg.Payload...)

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	t.s.messages = append(t.s.messages, msg)
	t.onRollback(func() {
		t.s.messages = t.s.messages[:len(t.s.messages)-1]
		t.s.nextMsg--
	})

	return nil
}

func (o *outboxTx) ListPending(_ context.Context, limit int) ([]outbox.Message, error) {
	if err := o.tx().check(); err != nil {
		return nil, err
	}

	var out []outbox.Message

	for _, m := range o.s.messages {
		if m.Status != outbox.StatusPending {
			continue
		}

		out = append(out, m)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (o *outboxTx) updateMessage(id int64, mutate func(*outbox.Message)) error {
	t := o.tx()
	if err := t.check(); err != nil {
		return err
	}

	for i := range t.s.messages {
		if t.s.messages[i].ID != id {
			continue
		}

		prev := t.s.messages[i]
		pos := i
		t.onRollback(func() { t.s.messages[pos] = prev })
		mutate(&t.s.messages[i])

		return nil
	}

	return nil
}

func (o *outboxTx) MarkSent(_ context.Context, id int64) error {
	return o.updateMessage(id, func(m *outbox.Message) {
		m.Status = outbox.StatusSent
	})
}

func (o *outboxTx) RecordFailure(_ context.Context, id int64, maxRetries int) error {
	return o.updateMessage(id, func(m *outbox.Message) {
		m.RetryCount++
		if m.RetryCount >= maxRetries {
			m.Status = outbox.StatusFailed
		}
	})
}
