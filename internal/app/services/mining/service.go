package mining

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/mining"
	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/metrics"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

// Alerter records fire-and-forget side effects of mining mutations.
type Alerter interface {
	Notify(accountID, typ, title, message string, data map[string]string, priority notification.Priority)
	Audit(accountID, action, entityRef, description, status string)
}

// Service owns the mining job lifecycle: provisioning jobs when mining is
// toggled on, cancelling them when toggled off, and settling claimed jobs
// on behalf of the completion sweep.
type Service struct {
	accounts storage.AccountStore
	ledger   storage.LedgerStore
	store    storage.MiningStore
	alerter  Alerter
	log      *logger.Logger
}

// New creates a configured mining service.
func New(accounts storage.AccountStore, ledgerStore storage.LedgerStore, store storage.MiningStore, alerter Alerter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("mining")
	}
	return &Service{
		accounts: accounts,
		ledger:   ledgerStore,
		store:    store,
		alerter:  alerter,
		log:      log,
	}
}

// SetActive toggles mining for an account. Toggling on provisions one job
// per supported currency, but only when the account has no active job; the
// existence check and the batch insert are one conditional mutation in the
// store, so concurrent toggles cannot double-provision. Toggling off
// cancels all of the account's mining jobs; jobs a sweep already claimed
// run to completion.
func (s *Service) SetActive(ctx context.Context, accountID string, active bool) ([]mining.Job, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("account_id is required: %w", account.ErrNotFound)
	}

	if !active {
		cancelled, err := s.store.CancelActiveJobs(ctx, accountID)
		if err != nil {
			return nil, err
		}
		s.log.WithField("account_id", accountID).
			WithField("cancelled", len(cancelled)).
			Info("mining stopped")
		return cancelled, nil
	}

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Status != account.StatusActive {
		return nil, fmt.Errorf("account %s is %s: %w", accountID, acct.Status, account.ErrNotActive)
	}

	now := time.Now().UTC()
	jobs := make([]mining.Job, 0, len(currency.All()))
	for _, code := range currency.All() {
		jobs = append(jobs, mining.Job{
			Currency:     code,
			Type:         mining.TypeFor(code),
			Status:       mining.StatusMining,
			TargetAmount: mining.TargetFor(code),
			StartTime:    now,
		})
	}

	created, ok, err := s.store.CreateJobsIfInactive(ctx, accountID, jobs)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.WithField("account_id", accountID).Debug("mining already active; no jobs created")
		return nil, nil
	}

	s.log.WithField("account_id", accountID).
		WithField("jobs", len(created)).
		Info("mining started")
	return created, nil
}

// Jobs lists an account's mining jobs.
func (s *Service) Jobs(ctx context.Context, accountID string) ([]mining.Job, error) {
	return s.store.ListJobs(ctx, accountID)
}

// Settle credits a claimed job's target amount, finalises it and spawns the
// successor cycle. The caller must have claimed the job (mining → settling)
// first; the balance credit and the mining transaction commit as one atomic
// ledger unit.
func (s *Service) Settle(ctx context.Context, job mining.Job) (mining.Job, error) {
	tx := transaction.Transaction{
		Reference:   transaction.NewReference(),
		Kind:        transaction.KindMining,
		Status:      transaction.StatusCompleted,
		Currency:    job.Currency,
		Amount:      job.TargetAmount,
		Description: fmt.Sprintf("Mining cycle completed for %s", job.Currency),
	}
	created, err := s.ledger.Apply(ctx, job.AccountID,
		[]ledger.Delta{{Currency: job.Currency, Amount: job.TargetAmount}}, tx)
	if err != nil {
		return mining.Job{}, fmt.Errorf("credit mining job %s: %w", job.ID, err)
	}

	successor := mining.Job{
		Currency:     job.Currency,
		Type:         job.Type,
		Status:       mining.StatusMining,
		TargetAmount: job.TargetAmount,
	}
	completed, next, err := s.store.CompleteJob(ctx, job.ID, job.TargetAmount, time.Now().UTC(), successor)
	if err != nil {
		// The credit is already committed; the job stays settling so no
		// later sweep can credit it again. Operator intervention required.
		s.log.WithError(err).
			WithField("job_id", job.ID).
			Error("mining job credited but not finalised")
		return mining.Job{}, err
	}

	if s.alerter != nil {
		s.alerter.Notify(job.AccountID, "mining_completed", "Mining cycle completed",
			fmt.Sprintf("Mined %.8f %s", job.TargetAmount, job.Currency),
			map[string]string{"reference": created.Reference, "job_id": job.ID},
			notification.PriorityNormal)
		s.alerter.Audit(job.AccountID, "mining_completed", created.Reference,
			fmt.Sprintf("Credited %.8f %s for mining job %s", job.TargetAmount, job.Currency, job.ID),
			string(transaction.StatusCompleted))
	}
	metrics.RecordMiningCompletion(string(job.Currency))

	s.log.WithField("account_id", job.AccountID).
		WithField("job_id", completed.ID).
		WithField("successor_id", next.ID).
		WithField("currency", string(job.Currency)).
		Info("mining cycle settled")
	return completed, nil
}
