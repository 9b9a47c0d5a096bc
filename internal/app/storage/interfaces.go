package storage

import (
	"context"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/mining"
	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
)

// AccountStore persists account records and the trading sub-state. The
// trading mutations are conditional updates executed atomically inside the
// store so concurrent cycles and user calls cannot race each other.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	ListAccounts(ctx context.Context) ([]account.Account, error)
	SetAccountStatus(ctx context.Context, id string, status account.Status) (account.Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// ActivateRobot turns the trading robot on, seeding capital only when
	// the current capital is zero.
	ActivateRobot(ctx context.Context, accountID string, seed float64) (account.TradingState, error)
	DeactivateRobot(ctx context.Context, accountID string) (account.TradingState, error)
	// ApplyTradingResult applies capital and profit deltas atomically.
	// Capital is floored at zero inside the mutation.
	ApplyTradingResult(ctx context.Context, accountID string, capitalDelta, profitDelta float64) (account.TradingState, error)
	// WithdrawTradingProfit moves the entire profit balance into the USD
	// ledger balance, zeroes profit and appends tx in the same atomic unit.
	// Fails with trading's no-profit error when profit is zero or negative.
	WithdrawTradingProfit(ctx context.Context, accountID string, tx transaction.Transaction) (amount float64, created transaction.Transaction, err error)
	// ListTradingAccounts returns accounts with an active robot and
	// positive capital.
	ListTradingAccounts(ctx context.Context) ([]account.Account, error)
}

// LedgerStore is the authoritative balance table. It is the single
// enforcement point for the non-negative-balance invariant.
type LedgerStore interface {
	GetBalance(ctx context.Context, accountID string, code currency.Code) (float64, error)
	Balances(ctx context.Context, accountID string) (map[currency.Code]float64, error)
	// ApplyDelta commits one balance mutation atomically and returns the new
	// balance. A debit that would drive the balance negative fails with
	// ledger.ErrInsufficientFunds and leaves the balance untouched.
	ApplyDelta(ctx context.Context, accountID string, code currency.Code, delta float64) (float64, error)
	// Apply commits the deltas and appends the transaction as one atomic
	// unit: no partial application is observable, and on failure neither
	// the balances nor the log change.
	Apply(ctx context.Context, accountID string, deltas []ledger.Delta, tx transaction.Transaction) (transaction.Transaction, error)
}

// TransactionStore persists the append-only transaction log.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx transaction.Transaction) (transaction.Transaction, error)
	GetTransaction(ctx context.Context, id string) (transaction.Transaction, error)
	GetTransactionByReference(ctx context.Context, ref string) (transaction.Transaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]transaction.Transaction, error)
}

// MiningStore persists mining jobs. Job state transitions that guard the
// exactly-once crediting contract are expressed as conditional mutations.
type MiningStore interface {
	// CreateJobsIfInactive creates the batch only when the account has no
	// job currently in mining status. Returns the created jobs, or nil
	// with created=false when active jobs already exist.
	CreateJobsIfInactive(ctx context.Context, accountID string, jobs []mining.Job) (createdJobs []mining.Job, created bool, err error)
	GetJob(ctx context.Context, id string) (mining.Job, error)
	ListJobs(ctx context.Context, accountID string) ([]mining.Job, error)
	ListActiveJobs(ctx context.Context) ([]mining.Job, error)
	UpdateJobProgress(ctx context.Context, id string, progress float64) error
	// ClaimJob atomically transitions a job from mining to settling.
	// claimed=false means another sweep holds or already finished the job.
	ClaimJob(ctx context.Context, id string) (job mining.Job, claimed bool, err error)
	// CompleteJob finalises a settling job and spawns its successor in the
	// same unit, returning both.
	CompleteJob(ctx context.Context, id string, minedAmount float64, endTime time.Time, successor mining.Job) (mining.Job, mining.Job, error)
	CancelActiveJobs(ctx context.Context, accountID string) ([]mining.Job, error)
	// AppendJobAddress appends to the bounded address ring, evicting the
	// oldest entry once the ring holds mining.AddressRingCap addresses.
	AppendJobAddress(ctx context.Context, id string, address string) error
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotifications(ctx context.Context, accountID string) ([]notification.Notification, error)
}

// AuditStore persists audit entries.
type AuditStore interface {
	CreateAuditEntry(ctx context.Context, entry notification.AuditEntry) (notification.AuditEntry, error)
	ListAuditEntries(ctx context.Context, accountID string) ([]notification.AuditEntry, error)
}
