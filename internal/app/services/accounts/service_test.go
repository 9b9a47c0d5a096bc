package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/storage/memory"
)

func TestServiceLifecycle(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	acct, err := svc.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acct.ID == "" {
		t.Fatal("expected id to be generated")
	}
	if acct.Status != account.StatusActive {
		t.Fatalf("status = %s, want active", acct.Status)
	}
	if len(acct.Balances) != 9 {
		t.Fatalf("balances = %d currencies, want the full supported set", len(acct.Balances))
	}
	for code, balance := range acct.Balances {
		if balance != 0 {
			t.Fatalf("%s balance = %v, want 0", code, balance)
		}
	}

	if _, err := svc.Create(ctx, "   "); err == nil {
		t.Fatal("blank owner accepted")
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("accounts = %d, want 1", len(list))
	}

	suspended, err := svc.SetStatus(ctx, acct.ID, account.StatusSuspended)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if suspended.Status != account.StatusSuspended {
		t.Fatalf("status = %s, want suspended", suspended.Status)
	}
	if _, err := svc.SetStatus(ctx, acct.ID, account.Status("frozen")); err == nil {
		t.Fatal("unknown status accepted")
	}

	balances, err := svc.Balances(ctx, acct.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 9 {
		t.Fatalf("balances = %d, want 9", len(balances))
	}

	if err := svc.Delete(ctx, acct.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, acct.ID); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
}
