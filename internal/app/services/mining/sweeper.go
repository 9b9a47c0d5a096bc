package mining

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apexvault/ledger_engine/internal/app/metrics"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/internal/app/system"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// sweepTimeout bounds one sweep so a slow store cannot stall the next
// scheduled run indefinitely.
const sweepTimeout = 10 * time.Minute

// Sweeper runs the hourly completion sweep. Completion is time-triggered:
// every job in mining status is credited its target amount on every sweep,
// regardless of interpolated progress. Each job is claimed with an atomic
// mining → settling transition before crediting, so a sweep overlapping a
// still-running predecessor credits each job at most once.
type Sweeper struct {
	service  *Service
	store    storage.MiningStore
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a lifecycle-managed completion sweeper on the default
// hourly schedule.
func NewSweeper(service *Service, store storage.MiningStore, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("mining-sweeper")
	}
	return &Sweeper{
		service:  service,
		store:    store,
		log:      log,
		schedule: "@hourly",
	}
}

// WithSchedule overrides the cron schedule. Call before Start.
func (s *Sweeper) WithSchedule(schedule string) *Sweeper {
	if schedule != "" {
		s.schedule = schedule
	}
	return s
}

func (s *Sweeper) Name() string { return "mining-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(cronLogger{s.log}))))
	if _, err := c.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("mining completion sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	// Stop returns a context that completes when in-flight runs finish;
	// claimed jobs run to completion rather than being aborted mid-credit.
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("mining completion sweeper stopped")
	return nil
}

// Sweep claims and settles every active job. Failures are isolated per
// job: one account's error never aborts the sweep for the others. Exported
// so tests can drive it without the scheduler.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordMiningSweep(time.Since(start)) }()

	jobs, err := s.store.ListActiveJobs(ctx)
	if err != nil {
		s.log.WithError(err).Warn("mining sweep: list active jobs failed")
		return
	}

	settled := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			s.log.Warn("mining sweep cancelled before finishing; remaining jobs settle next run")
			return
		}

		claimed, ok, err := s.store.ClaimJob(ctx, job.ID)
		if err != nil {
			s.log.WithError(err).
				WithField("job_id", job.ID).
				Warn("mining sweep: claim failed")
			continue
		}
		if !ok {
			// Another overlapping sweep holds this job.
			continue
		}

		if _, err := s.service.Settle(ctx, claimed); err != nil {
			s.log.WithError(err).
				WithField("job_id", claimed.ID).
				WithField("account_id", claimed.AccountID).
				Warn("mining sweep: settle failed")
			continue
		}
		settled++
	}

	if settled > 0 {
		s.log.WithField("settled", settled).Info("mining sweep finished")
	}
}

// cronLogger adapts the application logger to cron's Printf interface.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Printf(format string, args ...any) {
	c.log.Infof(format, args...)
}
