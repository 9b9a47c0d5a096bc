package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/mining"
	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. All conditional mutations run under one lock, which is what
// makes them atomic with respect to each other.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	accounts              map[string]account.Account
	transactions          map[string]transaction.Transaction
	transactionsByAccount map[string][]string
	transactionsByRef     map[string]string
	miningJobs            map[string]mining.Job
	notifications         map[string][]notification.Notification
	auditEntries          map[string][]notification.AuditEntry
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.MiningStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:                1,
		accounts:              make(map[string]account.Account),
		transactions:          make(map[string]transaction.Transaction),
		transactionsByAccount: make(map[string][]string),
		transactionsByRef:     make(map[string]string),
		miningJobs:            make(map[string]mining.Job),
		notifications:         make(map[string][]notification.Notification),
		auditEntries:          make(map[string][]notification.AuditEntry),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s already exists", acct.ID)
	}

	acct.Owner = strings.TrimSpace(acct.Owner)
	if acct.Status == "" {
		acct.Status = account.StatusActive
	}
	if acct.Balances == nil {
		acct.Balances = account.ZeroBalances()
	} else {
		acct.Balances = cloneBalances(acct.Balances)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.accounts[acct.ID] = acct
	return cloneAccount(acct), nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", id, account.ErrNotFound)
	}
	return cloneAccount(acct), nil
}

func (s *Store) ListAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, cloneAccount(acct))
	}
	return result, nil
}

func (s *Store) SetAccountStatus(_ context.Context, id string, status account.Status) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", id, account.ErrNotFound)
	}
	acct.Status = status
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[id] = acct
	return cloneAccount(acct), nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, account.ErrNotFound)
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) ActivateRobot(_ context.Context, accountID string, seed float64) (account.TradingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return account.TradingState{}, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	if acct.Trading.Capital == 0 {
		acct.Trading.Capital = seed
	}
	acct.Trading.RobotActive = true
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct
	return acct.Trading, nil
}

func (s *Store) DeactivateRobot(_ context.Context, accountID string) (account.TradingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return account.TradingState{}, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	acct.Trading.RobotActive = false
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct
	return acct.Trading, nil
}

func (s *Store) ApplyTradingResult(_ context.Context, accountID string, capitalDelta, profitDelta float64) (account.TradingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return account.TradingState{}, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	acct.Trading.Capital += capitalDelta
	if acct.Trading.Capital < 0 {
		acct.Trading.Capital = 0
	}
	acct.Trading.Profit += profitDelta
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct
	return acct.Trading, nil
}

func (s *Store) WithdrawTradingProfit(_ context.Context, accountID string, tx transaction.Transaction) (float64, transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, transaction.Transaction{}, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	if acct.Trading.Profit <= ledger.Epsilon {
		return 0, transaction.Transaction{}, account.ErrNoProfitAvailable
	}

	amount := acct.Trading.Profit
	acct.Trading.Profit = 0
	acct.Balances[currency.USD] += amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct

	tx.AccountID = accountID
	tx.Amount = amount
	created, err := s.createTransactionLocked(tx)
	if err != nil {
		return 0, transaction.Transaction{}, err
	}
	return amount, created, nil
}

func (s *Store) ListTradingAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0)
	for _, acct := range s.accounts {
		if acct.Trading.RobotActive && acct.Trading.Capital > 0 {
			result = append(result, cloneAccount(acct))
		}
	}
	return result, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) GetBalance(_ context.Context, accountID string, code currency.Code) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	return acct.Balances[code], nil
}

func (s *Store) Balances(_ context.Context, accountID string) (map[currency.Code]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	return cloneBalances(acct.Balances), nil
}

func (s *Store) ApplyDelta(_ context.Context, accountID string, code currency.Code, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyDeltaLocked(accountID, code, delta)
}

func (s *Store) applyDeltaLocked(accountID string, code currency.Code, delta float64) (float64, error) {
	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}

	next := acct.Balances[code] + delta
	if next < -ledger.Epsilon {
		return 0, fmt.Errorf("%s balance %.8f short of %.8f: %w",
			code, acct.Balances[code], -delta, ledger.ErrInsufficientFunds)
	}
	if next < 0 {
		next = 0
	}
	acct.Balances[code] = next
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct
	return next, nil
}

func (s *Store) Apply(_ context.Context, accountID string, deltas []ledger.Delta, tx transaction.Transaction) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return transaction.Transaction{}, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}

	// Validate every debit before touching anything so the unit commits
	// all-or-nothing.
	staged := cloneBalances(acct.Balances)
	for _, d := range deltas {
		next := staged[d.Currency] + d.Amount
		if next < -ledger.Epsilon {
			return transaction.Transaction{}, fmt.Errorf("%s balance %.8f short of %.8f: %w",
				d.Currency, staged[d.Currency], -d.Amount, ledger.ErrInsufficientFunds)
		}
		if next < 0 {
			next = 0
		}
		staged[d.Currency] = next
	}

	acct.Balances = staged
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct

	tx.AccountID = accountID
	return s.createTransactionLocked(tx)
}

// TransactionStore implementation ---------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx transaction.Transaction) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createTransactionLocked(tx)
}

func (s *Store) createTransactionLocked(tx transaction.Transaction) (transaction.Transaction, error) {
	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	} else if _, exists := s.transactions[tx.ID]; exists {
		return transaction.Transaction{}, fmt.Errorf("transaction %s already exists", tx.ID)
	}
	if tx.Reference == "" {
		tx.Reference = transaction.NewReference()
	}
	if _, exists := s.transactionsByRef[tx.Reference]; exists {
		return transaction.Transaction{}, fmt.Errorf("transaction reference %s already exists", tx.Reference)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.transactions[tx.ID] = tx
	s.transactionsByRef[tx.Reference] = tx.ID
	s.transactionsByAccount[tx.AccountID] = append(s.transactionsByAccount[tx.AccountID], tx.ID)
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return transaction.Transaction{}, fmt.Errorf("transaction %s: %w", id, transaction.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) GetTransactionByReference(_ context.Context, ref string) (transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.transactionsByRef[ref]
	if !ok {
		return transaction.Transaction{}, fmt.Errorf("transaction %s: %w", ref, transaction.ErrNotFound)
	}
	return s.transactions[id], nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string) ([]transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.transactionsByAccount[accountID]
	result := make([]transaction.Transaction, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.transactions[id])
	}
	return result, nil
}

// MiningStore implementation --------------------------------------------------

func (s *Store) CreateJobsIfInactive(_ context.Context, accountID string, jobs []mining.Job) ([]mining.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, false, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	for _, job := range s.miningJobs {
		if job.AccountID == accountID && (job.Status == mining.StatusMining || job.Status == mining.StatusSettling) {
			return nil, false, nil
		}
	}

	now := time.Now().UTC()
	created := make([]mining.Job, 0, len(jobs))
	for _, job := range jobs {
		job.ID = s.nextIDLocked()
		job.AccountID = accountID
		if job.StartTime.IsZero() {
			job.StartTime = now
		}
		job.CreatedAt = now
		job.UpdatedAt = now
		s.miningJobs[job.ID] = job
		created = append(created, cloneJob(job))
	}
	return created, true, nil
}

func (s *Store) GetJob(_ context.Context, id string) (mining.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.miningJobs[id]
	if !ok {
		return mining.Job{}, fmt.Errorf("mining job %s: %w", id, mining.ErrNotFound)
	}
	return cloneJob(job), nil
}

func (s *Store) ListJobs(_ context.Context, accountID string) ([]mining.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]mining.Job, 0)
	for _, job := range s.miningJobs {
		if accountID == "" || job.AccountID == accountID {
			result = append(result, cloneJob(job))
		}
	}
	return result, nil
}

func (s *Store) ListActiveJobs(_ context.Context) ([]mining.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]mining.Job, 0)
	for _, job := range s.miningJobs {
		if job.Status == mining.StatusMining {
			result = append(result, cloneJob(job))
		}
	}
	return result, nil
}

func (s *Store) UpdateJobProgress(_ context.Context, id string, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.miningJobs[id]
	if !ok {
		return fmt.Errorf("mining job %s: %w", id, mining.ErrNotFound)
	}
	if job.Status != mining.StatusMining {
		return nil
	}
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC()
	s.miningJobs[id] = job
	return nil
}

func (s *Store) ClaimJob(_ context.Context, id string) (mining.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.miningJobs[id]
	if !ok {
		return mining.Job{}, false, fmt.Errorf("mining job %s: %w", id, mining.ErrNotFound)
	}
	if job.Status != mining.StatusMining {
		return mining.Job{}, false, nil
	}
	job.Status = mining.StatusSettling
	job.UpdatedAt = time.Now().UTC()
	s.miningJobs[id] = job
	return cloneJob(job), true, nil
}

func (s *Store) CompleteJob(_ context.Context, id string, minedAmount float64, endTime time.Time, successor mining.Job) (mining.Job, mining.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.miningJobs[id]
	if !ok {
		return mining.Job{}, mining.Job{}, fmt.Errorf("mining job %s: %w", id, mining.ErrNotFound)
	}
	if job.Status != mining.StatusSettling {
		return mining.Job{}, mining.Job{}, fmt.Errorf("mining job %s is %s, not settling", id, job.Status)
	}

	now := time.Now().UTC()
	job.Status = mining.StatusCompleted
	job.MinedAmount = minedAmount
	job.Progress = 100
	job.EndTime = endTime
	job.UpdatedAt = now
	s.miningJobs[id] = job

	successor.ID = s.nextIDLocked()
	successor.AccountID = job.AccountID
	if successor.StartTime.IsZero() {
		successor.StartTime = now
	}
	successor.CreatedAt = now
	successor.UpdatedAt = now
	s.miningJobs[successor.ID] = successor

	return cloneJob(job), cloneJob(successor), nil
}

func (s *Store) CancelActiveJobs(_ context.Context, accountID string) ([]mining.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cancelled := make([]mining.Job, 0)
	for id, job := range s.miningJobs {
		if job.AccountID != accountID || job.Status != mining.StatusMining {
			continue
		}
		job.Status = mining.StatusCancelled
		job.EndTime = now
		job.UpdatedAt = now
		s.miningJobs[id] = job
		cancelled = append(cancelled, cloneJob(job))
	}
	return cancelled, nil
}

func (s *Store) AppendJobAddress(_ context.Context, id string, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.miningJobs[id]
	if !ok {
		return fmt.Errorf("mining job %s: %w", id, mining.ErrNotFound)
	}
	job.Addresses = append(job.Addresses, address)
	if overflow := len(job.Addresses) - mining.AddressRingCap; overflow > 0 {
		job.Addresses = append([]string(nil), job.Addresses[overflow:]...)
	}
	job.UpdatedAt = time.Now().UTC()
	s.miningJobs[id] = job
	return nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.nextIDLocked()
	}
	n.CreatedAt = time.Now().UTC()
	n.Data = cloneData(n.Data)
	s.notifications[n.AccountID] = append(s.notifications[n.AccountID], n)
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, accountID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]notification.Notification(nil), s.notifications[accountID]...), nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) CreateAuditEntry(_ context.Context, entry notification.AuditEntry) (notification.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	entry.CreatedAt = time.Now().UTC()
	s.auditEntries[entry.AccountID] = append(s.auditEntries[entry.AccountID], entry)
	return entry, nil
}

func (s *Store) ListAuditEntries(_ context.Context, accountID string) ([]notification.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]notification.AuditEntry(nil), s.auditEntries[accountID]...), nil
}

// Helpers --------------------------------------------------------------------

func cloneBalances(src map[currency.Code]float64) map[currency.Code]float64 {
	dst := make(map[currency.Code]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneData(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneAccount(acct account.Account) account.Account {
	acct.Balances = cloneBalances(acct.Balances)
	return acct
}

func cloneJob(job mining.Job) mining.Job {
	job.Addresses = append([]string(nil), job.Addresses...)
	return job
}
