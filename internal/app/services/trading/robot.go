package trading

import (
	"context"
	"sync"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/internal/app/system"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

var _ system.Service = (*Robot)(nil)

// Robot drives the trading cycle: every interval it runs one cycle for
// every account with an active robot and positive capital. Per-account
// failures are isolated; toggling the robot off takes effect on the next
// cycle because eligibility is re-read from the store each tick.
type Robot struct {
	accounts storage.AccountStore
	service  *Service
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRobot creates a lifecycle-managed trading cycle runner.
func NewRobot(accounts storage.AccountStore, service *Service, log *logger.Logger) *Robot {
	if log == nil {
		log = logger.NewDefault("trading-robot")
	}
	return &Robot{
		accounts: accounts,
		service:  service,
		log:      log,
		interval: time.Minute,
	}
}

// WithInterval overrides the cycle interval. Call before Start.
func (r *Robot) WithInterval(interval time.Duration) *Robot {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

func (r *Robot) Name() string { return "trading-robot" }

func (r *Robot) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.Tick(runCtx)
			}
		}
	}()

	r.log.Info("trading robot started")
	return nil
}

func (r *Robot) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("trading robot stopped")
	return nil
}

// Tick runs one trading cycle over every eligible account. Exported so
// tests can drive it without the timer.
func (r *Robot) Tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	accounts, err := r.accounts.ListTradingAccounts(ctx)
	if err != nil {
		r.log.WithError(err).Warn("trading tick: list eligible accounts failed")
		return
	}

	for _, acct := range accounts {
		if ctx.Err() != nil {
			r.log.Warn("trading tick cancelled before finishing")
			return
		}
		if err := r.service.RunCycle(ctx, acct); err != nil {
			r.log.WithError(err).
				WithField("account_id", acct.ID).
				Warn("trading cycle failed")
		}
	}
}
