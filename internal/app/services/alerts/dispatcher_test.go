package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/storage/memory"
)

func TestDispatcherDeliversQueuedRecords(t *testing.T) {
	store := memory.New()
	d := NewDispatcher(store, store, nil)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	d.Notify("acct-1", "transfer_sent", "Transaction completed", "Sent 10.00 USD", map[string]string{"reference": "TXN-A"}, notification.PriorityNormal)
	d.Audit("acct-1", "transfer_sent", "TXN-A", "Sent 10.00 USD to alice", "completed")

	deadline := time.Now().Add(2 * time.Second)
	for {
		notes, err := store.ListNotifications(ctx, "acct-1")
		if err != nil {
			t.Fatalf("list notifications: %v", err)
		}
		entries, err := store.ListAuditEntries(ctx, "acct-1")
		if err != nil {
			t.Fatalf("list audit entries: %v", err)
		}
		if len(notes) == 1 && len(entries) == 1 {
			if notes[0].Type != "transfer_sent" || notes[0].Priority != notification.PriorityNormal {
				t.Fatalf("notification = %+v", notes[0])
			}
			if entries[0].EntityRef != "TXN-A" {
				t.Fatalf("audit entry = %+v", entries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("records not delivered: notes=%d entries=%d", len(notes), len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDispatcherDrainsOnStop(t *testing.T) {
	store := memory.New()
	d := NewDispatcher(store, store, nil)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 50; i++ {
		d.Audit("acct-2", "trading_cycle", "TXN-B", "cycle applied", "completed")
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	entries, err := store.ListAuditEntries(ctx, "acct-2")
	if err != nil {
		t.Fatalf("list audit entries: %v", err)
	}
	if len(entries) != 50 {
		t.Fatalf("entries = %d, want every queued record flushed on stop", len(entries))
	}
}

func TestEnqueueNeverBlocksWhenStopped(t *testing.T) {
	d := NewDispatcher(memory.New(), memory.New(), nil)

	// Overfill the queue without a running worker; the surplus is dropped
	// rather than blocking the producer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueCapacity+100; i++ {
			d.Notify("acct-3", "t", "title", "message", nil, notification.PriorityLow)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
