package app

import (
	"context"
	"testing"
	"time"
)

func TestApplicationLifecycle(t *testing.T) {
	application, err := New(Stores{}, Config{
		MiningProgressInterval: time.Hour,
		AddressInterval:        time.Hour,
		TradingInterval:        time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Idempotent start.
	if err := application.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	acct, err := application.Accounts.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if acct.Status != "active" {
		t.Fatalf("status = %s, want active", acct.Status)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
