package mining

import (
	"context"
	"sync"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/mining"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/internal/app/system"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

var _ system.Service = (*ProgressTicker)(nil)

// ProgressTicker periodically recomputes the interpolated progress of every
// active job. Progress is cosmetic: completion is time-triggered by the
// sweep, never by this value. The recomputation is idempotent.
type ProgressTicker struct {
	store    storage.MiningStore
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewProgressTicker creates a lifecycle-managed progress ticker.
func NewProgressTicker(store storage.MiningStore, log *logger.Logger) *ProgressTicker {
	if log == nil {
		log = logger.NewDefault("mining-progress")
	}
	return &ProgressTicker{
		store:    store,
		log:      log,
		interval: time.Minute,
	}
}

// WithInterval overrides the tick interval. Call before Start.
func (t *ProgressTicker) WithInterval(interval time.Duration) *ProgressTicker {
	if interval > 0 {
		t.interval = interval
	}
	return t
}

func (t *ProgressTicker) Name() string { return "mining-progress-ticker" }

func (t *ProgressTicker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				t.Tick(runCtx)
			}
		}
	}()

	t.log.Info("mining progress ticker started")
	return nil
}

func (t *ProgressTicker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	t.running = false
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.log.Info("mining progress ticker stopped")
	return nil
}

// Tick recomputes progress for every active job. Exported so tests can
// drive it without the timer.
func (t *ProgressTicker) Tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	jobs, err := t.store.ListActiveJobs(ctx)
	if err != nil {
		t.log.WithError(err).Warn("list active mining jobs failed")
		return
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		progress := mining.InterpolateProgress(job.StartTime, now)
		if err := t.store.UpdateJobProgress(ctx, job.ID, progress); err != nil {
			t.log.WithError(err).
				WithField("job_id", job.ID).
				Warn("update mining progress failed")
		}
	}
}
