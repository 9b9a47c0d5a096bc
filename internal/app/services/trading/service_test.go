package trading

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/storage/memory"
)

func setup(t *testing.T) (*Service, *memory.Store, account.Account) {
	t.Helper()
	store := memory.New()
	acct, err := store.CreateAccount(context.Background(), account.Account{
		Owner:    "owner",
		Status:   account.StatusActive,
		Balances: account.ZeroBalances(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	svc := New(store, store, nil, nil).WithRand(rand.New(rand.NewSource(42)))
	return svc, store, acct
}

func TestSetRobotSeedsCapital(t *testing.T) {
	svc, _, acct := setup(t)
	ctx := context.Background()

	state, err := svc.SetRobot(ctx, acct.ID, true)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if state.Capital != SeedCapital || !state.RobotActive {
		t.Fatalf("state = %+v, want active robot seeded with %v", state, SeedCapital)
	}

	state, err = svc.SetRobot(ctx, acct.ID, false)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if state.RobotActive {
		t.Fatal("robot still active after deactivation")
	}
	if state.Capital != SeedCapital {
		t.Fatalf("capital = %v, want untouched by deactivation", state.Capital)
	}
}

func TestSetRobotRequiresActiveAccount(t *testing.T) {
	svc, store, acct := setup(t)
	ctx := context.Background()

	if _, err := store.SetAccountStatus(ctx, acct.ID, account.StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := svc.SetRobot(ctx, acct.ID, true); !errors.Is(err, account.ErrNotActive) {
		t.Fatalf("error = %v, want ErrNotActive", err)
	}
}

func TestRunCycleInvariants(t *testing.T) {
	svc, store, acct := setup(t)
	ctx := context.Background()

	if _, err := svc.SetRobot(ctx, acct.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}

	const cycles = 100
	for i := 0; i < cycles; i++ {
		before, err := svc.State(ctx, acct.ID)
		if err != nil {
			t.Fatalf("state before cycle %d: %v", i, err)
		}

		current, err := store.GetAccount(ctx, acct.ID)
		if err != nil {
			t.Fatalf("get account: %v", err)
		}
		if err := svc.RunCycle(ctx, current); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}

		after, err := svc.State(ctx, acct.ID)
		if err != nil {
			t.Fatalf("state after cycle %d: %v", i, err)
		}
		if after.Capital < 0 {
			t.Fatalf("cycle %d drove capital negative: %v", i, after.Capital)
		}

		if after.Profit > before.Profit {
			// Profitable outcome: capital untouched, profit within the
			// margin band of the trade size band.
			if after.Capital != before.Capital {
				t.Fatalf("cycle %d changed capital on a win: %v -> %v", i, before.Capital, after.Capital)
			}
			gain := after.Profit - before.Profit
			if gain < before.Capital*0.01*0.02 || gain > before.Capital*0.05*0.08 {
				t.Fatalf("cycle %d gain %v outside the trade/margin bands for capital %v", i, gain, before.Capital)
			}
		} else {
			// Unprofitable outcome: profit untouched, capital reduced by
			// the loss factor of the trade size.
			if after.Profit != before.Profit {
				t.Fatalf("cycle %d changed profit on a loss: %v -> %v", i, before.Profit, after.Profit)
			}
			loss := before.Capital - after.Capital
			if loss < before.Capital*0.01*lossFactor-1e-9 || loss > before.Capital*0.05*lossFactor+1e-9 {
				t.Fatalf("cycle %d loss %v outside the loss band for capital %v", i, loss, before.Capital)
			}
		}
	}

	txs, err := store.ListTransactions(ctx, acct.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != cycles {
		t.Fatalf("transactions = %d, want one per cycle", len(txs))
	}
}

func TestRunCycleSkipsDrainedCapital(t *testing.T) {
	svc, store, acct := setup(t)
	ctx := context.Background()

	if _, err := svc.SetRobot(ctx, acct.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := store.ApplyTradingResult(ctx, acct.ID, -SeedCapital, 0); err != nil {
		t.Fatalf("drain: %v", err)
	}

	current, err := store.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if err := svc.RunCycle(ctx, current); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	txs, err := store.ListTransactions(ctx, acct.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("transactions = %d, want none with zero capital", len(txs))
	}
}

func TestWithdrawProfit(t *testing.T) {
	svc, store, acct := setup(t)
	ctx := context.Background()

	if _, err := svc.SetRobot(ctx, acct.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := store.ApplyTradingResult(ctx, acct.ID, 0, 321.5); err != nil {
		t.Fatalf("accrue profit: %v", err)
	}

	tx, err := svc.WithdrawProfit(ctx, acct.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if tx.Currency != currency.USD || tx.Amount != 321.5 {
		t.Fatalf("tx = %+v, want 321.5 USD", tx)
	}

	usd, err := store.GetBalance(ctx, acct.ID, currency.USD)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if usd != 321.5 {
		t.Fatalf("usd = %v, want the withdrawn profit", usd)
	}

	if _, err := svc.WithdrawProfit(ctx, acct.ID); !errors.Is(err, account.ErrNoProfitAvailable) {
		t.Fatalf("second withdraw error = %v, want ErrNoProfitAvailable", err)
	}
}

func TestRobotTickRunsEligibleAccounts(t *testing.T) {
	svc, store, acct := setup(t)
	ctx := context.Background()

	if _, err := svc.SetRobot(ctx, acct.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}

	idle, err := store.CreateAccount(ctx, account.Account{
		Owner:    "idle",
		Status:   account.StatusActive,
		Balances: account.ZeroBalances(),
	})
	if err != nil {
		t.Fatalf("create idle account: %v", err)
	}

	robot := NewRobot(store, svc, nil)
	robot.Tick(ctx)

	txs, err := store.ListTransactions(ctx, acct.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want one cycle for the active robot", len(txs))
	}

	idleTxs, err := store.ListTransactions(ctx, idle.ID)
	if err != nil {
		t.Fatalf("list idle transactions: %v", err)
	}
	if len(idleTxs) != 0 {
		t.Fatalf("idle transactions = %d, want none", len(idleTxs))
	}
}
