package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/mining"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	acct, err := store.CreateAccount(ctx, account.Account{Owner: "owner", Status: account.StatusActive})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	defer store.DeleteAccount(ctx, acct.ID)

	tx := transaction.Transaction{
		AccountID: acct.ID,
		Kind:      transaction.KindReceive,
		Status:    transaction.StatusCompleted,
		Currency:  currency.USD,
		Amount:    100,
	}
	if _, err := store.Apply(ctx, acct.ID, []ledger.Delta{{Currency: currency.USD, Amount: 100}}, tx); err != nil {
		t.Fatalf("apply credit: %v", err)
	}

	balance, err := store.GetBalance(ctx, acct.ID, currency.USD)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("balance = %v, want 100", balance)
	}

	debit := transaction.Transaction{
		AccountID: acct.ID,
		Kind:      transaction.KindSend,
		Status:    transaction.StatusCompleted,
		Currency:  currency.USD,
		Amount:    500,
	}
	if _, err := store.Apply(ctx, acct.ID, []ledger.Delta{{Currency: currency.USD, Amount: -500}}, debit); err == nil {
		t.Fatal("overdraw succeeded, want ledger.ErrInsufficientFunds")
	}

	balance, err = store.GetBalance(ctx, acct.ID, currency.USD)
	if err != nil {
		t.Fatalf("get balance after failed debit: %v", err)
	}
	if balance != 100 {
		t.Fatalf("balance after failed debit = %v, want 100", balance)
	}

	created, ok, err := store.CreateJobsIfInactive(ctx, acct.ID, []mining.Job{
		{Currency: currency.BTC, Type: mining.TypeCrypto, Status: mining.StatusMining, TargetAmount: 0.05},
	})
	if err != nil || !ok {
		t.Fatalf("create jobs: ok=%v err=%v", ok, err)
	}

	cancelled, err := store.CancelActiveJobs(ctx, acct.ID)
	if err != nil {
		t.Fatalf("cancel jobs: %v", err)
	}
	if len(cancelled) != 1 {
		t.Fatalf("cancelled = %d, want 1", len(cancelled))
	}
	if cancelled[0].EndTime.IsZero() {
		t.Fatal("cancelled job has no end time")
	}

	job, err := store.GetJob(ctx, created[0].ID)
	if err != nil {
		t.Fatalf("get cancelled job: %v", err)
	}
	if job.Status != mining.StatusCancelled || job.EndTime.IsZero() {
		t.Fatalf("job status = %s, end time zero = %v, want cancelled with a stamp", job.Status, job.EndTime.IsZero())
	}
}
