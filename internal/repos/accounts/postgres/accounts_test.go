package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/flipledger/internal/infra/pgtestutil"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func seedAccount(t *testing.T, db *sql.DB, id, subject, balance string) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO accounts (id, subject, balance) VALUES ($1, $2, $3)`, id, subject, balance)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func TestAccounts_EnsureByIdentity(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)

	repo := New(db)
	ctx := t.Context()

	identity := ledger.Identity{Subject: "google-oauth2|1", Email: "a@example.com", DisplayName: "A"}

	first, created, err := repo.EnsureByIdentity(ctx, uuid.NewString(), identity)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Fatal("first call must create the account")
	}

	second, created, err := repo.EnsureByIdentity(ctx, uuid.NewString(), identity)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if created {
		t.Fatal("second call must not create an account")
	}
	if second.ID != first.ID {
		t.Fatalf("account id changed: %s != %s", second.ID, first.ID)
	}
	if !second.Balance.IsZero() || second.Email != "a@example.com" {
		t.Fatalf("unexpected account: %+v", second)
	}
}

func TestAccounts_Get_NotFound(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)

	_, err := New(db).Get(t.Context(), uuid.NewString())
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestAccounts_DecreaseBalance_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		balance     string
		amount      string
		wantErr     error
		wantBalance string
	}{
		{name: "partial", balance: "10.00", amount: "2.50", wantBalance: "7.5"},
		{name: "exact_to_zero", balance: "3.00", amount: "3.00", wantBalance: "0"},
		{name: "insufficient_unchanged", balance: "2.00", amount: "3.00", wantErr: ledger.ErrInsufficientFunds, wantBalance: "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := pgtestutil.NewTestDB(t)

			id := uuid.NewString()
			seedAccount(t, db, id, "sub-"+tt.name, tt.balance)

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			err = New(tx).DecreaseBalance(ctx, id, decimal.RequireFromString(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("decrease: want %v, got %v", tt.wantErr, err)
			}

			if err == nil {
				err = tx.Commit()
				if err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			acc, err := New(db).Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !acc.Balance.Equal(decimal.RequireFromString(tt.wantBalance)) {
				t.Fatalf("balance: want %s, got %s", tt.wantBalance, acc.Balance)
			}
		})
	}
}

func TestAccounts_BindDepositAddress(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)

	a, b := uuid.NewString(), uuid.NewString()
	seedAccount(t, db, a, "sub-a", "0")
	seedAccount(t, db, b, "sub-b", "0")

	repo := New(db)
	ctx := t.Context()

	err := repo.BindDepositAddress(ctx, a, "AddrA")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	err = repo.BindDepositAddress(ctx, a, "AddrA")
	if err != nil {
		t.Fatalf("rebind same address: %v", err)
	}

	err = repo.BindDepositAddress(ctx, a, "AddrB")
	if !errors.Is(err, ledger.ErrAlreadyBound) {
		t.Fatalf("want ErrAlreadyBound, got %v", err)
	}

	err = repo.BindDepositAddress(ctx, b, "AddrA")
	if !errors.Is(err, ledger.ErrAddressInUse) {
		t.Fatalf("want ErrAddressInUse, got %v", err)
	}

	payout := "PayoutAddr"

	err = repo.SetPayoutAddress(ctx, b, &payout)
	if err != nil {
		t.Fatalf("set payout: %v", err)
	}

	acc, err := repo.Get(ctx, b)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.PayoutAddress == nil || *acc.PayoutAddress != payout || acc.BoundDepositAddress != nil {
		t.Fatalf("unexpected addresses: %+v", acc)
	}
}

// Second FOR UPDATE on the same row must wait for the first transaction.
func TestAccounts_LockForUpdate_Blocks(t *testing.T) {
	t.Parallel()

	db := pgtestutil.NewTestDB(t)

	id := uuid.NewString()
	seedAccount(t, db, id, "sub-lock", "1")

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	tx1, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx1: %v", err)
	}
	defer func() { _ = tx1.Rollback() }()

	_, err = New(tx1).LockForUpdate(ctx, id)
	if err != nil {
		t.Fatalf("tx1 lock: %v", err)
	}

	locked := make(chan error, 1)

	go func() {
		tx2, e := db.BeginTx(ctx, nil)
		if e != nil {
			locked <- e
			return
		}
		defer func() { _ = tx2.Rollback() }()

		_, e = New(tx2).LockForUpdate(ctx, id)
		locked <- e
	}()

	select {
	case e := <-locked:
		t.Fatalf("tx2 acquired the lock while tx1 held it (err=%v)", e)
	case <-time.After(200 * time.Millisecond):
	}

	err = tx1.Commit()
	if err != nil {
		t.Fatalf("commit tx1: %v", err)
	}

	select {
	case e := <-locked:
		if e != nil {
			t.Fatalf("tx2 lock: %v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tx2 still blocked after tx1 commit")
	}
}
