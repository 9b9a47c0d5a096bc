package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/metrics"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/internal/app/system"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

var _ system.Service = (*Dispatcher)(nil)

const queueCapacity = 1024

type eventKind int

const (
	eventNotification eventKind = iota
	eventAudit
)

type event struct {
	kind  eventKind
	note  notification.Notification
	audit notification.AuditEntry
}

// Dispatcher is the outbound queue for notifications and audit entries.
// Producers enqueue without blocking; a single worker drains the queue into
// the stores. Delivery is fire-and-forget: a full queue drops the record
// and a store failure is logged, never propagated back to the ledger
// mutation that produced it.
type Dispatcher struct {
	notifications storage.NotificationStore
	audits        storage.AuditStore
	log           *logger.Logger
	queue         chan event

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewDispatcher creates an outbound alert dispatcher.
func NewDispatcher(notifications storage.NotificationStore, audits storage.AuditStore, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &Dispatcher{
		notifications: notifications,
		audits:        audits,
		log:           log,
		queue:         make(chan event, queueCapacity),
	}
}

// Notify enqueues a notification. Never blocks.
func (d *Dispatcher) Notify(accountID, typ, title, message string, data map[string]string, priority notification.Priority) {
	if priority == "" {
		priority = notification.PriorityNormal
	}
	d.enqueue(event{kind: eventNotification, note: notification.Notification{
		AccountID: accountID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		Priority:  priority,
	}})
}

// Audit enqueues a compliance trail entry. Never blocks.
func (d *Dispatcher) Audit(accountID, action, entityRef, description, status string) {
	d.enqueue(event{kind: eventAudit, audit: notification.AuditEntry{
		AccountID:   accountID,
		Action:      action,
		EntityRef:   entityRef,
		Description: description,
		Status:      status,
	}})
}

func (d *Dispatcher) enqueue(ev event) {
	select {
	case d.queue <- ev:
	default:
		kind := "notification"
		if ev.kind == eventAudit {
			kind = "audit"
		}
		metrics.RecordAlertDropped(kind)
		d.log.WithField("kind", kind).Warn("alert queue full; record dropped")
	}
}

func (d *Dispatcher) Name() string { return "alerts-dispatcher" }

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				d.drain()
				return
			case ev := <-d.queue:
				d.deliver(ev)
			}
		}
	}()

	d.log.Info("alert dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info("alert dispatcher stopped")
	return nil
}

// drain flushes whatever is already queued before the worker exits.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch ev.kind {
	case eventNotification:
		if d.notifications == nil {
			return
		}
		if _, err := d.notifications.CreateNotification(ctx, ev.note); err != nil {
			d.log.WithError(err).
				WithField("account_id", ev.note.AccountID).
				Warn("store notification failed")
		}
	case eventAudit:
		if d.audits == nil {
			return
		}
		if _, err := d.audits.CreateAuditEntry(ctx, ev.audit); err != nil {
			d.log.WithError(err).
				WithField("account_id", ev.audit.AccountID).
				Warn("store audit entry failed")
		}
	}
}
