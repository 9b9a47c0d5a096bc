package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/mining"
	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

// Store implements the storage interfaces backed by PostgreSQL. The
// conditional mutations the services rely on (balance checks, trading
// seeds, job claims) run inside SQL transactions with row locks, so two
// connections cannot interleave a check and its write.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.MiningStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// Config holds connection pool settings.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// Open connects to PostgreSQL and verifies the connection.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewDefault("postgres")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, log: logger.NewDefault("postgres")}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
	id              TEXT PRIMARY KEY,
	owner           TEXT NOT NULL,
	status          TEXT NOT NULL,
	trading_capital DOUBLE PRECISION NOT NULL DEFAULT 0,
	trading_profit  DOUBLE PRECISION NOT NULL DEFAULT 0,
	robot_active    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_balances (
	account_id TEXT NOT NULL REFERENCES ledger_accounts(id) ON DELETE CASCADE,
	currency   TEXT NOT NULL,
	balance    DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (balance >= 0),
	PRIMARY KEY (account_id, currency)
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id                   TEXT PRIMARY KEY,
	reference            TEXT NOT NULL UNIQUE,
	account_id           TEXT NOT NULL,
	kind                 TEXT NOT NULL,
	status               TEXT NOT NULL,
	currency             TEXT NOT NULL,
	amount               DOUBLE PRECISION NOT NULL,
	from_currency        TEXT NOT NULL DEFAULT '',
	to_currency          TEXT NOT NULL DEFAULT '',
	converted_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
	exchange_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	hash                 TEXT NOT NULL DEFAULT '',
	counterparty         TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	estimated_completion TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_transactions_account
	ON ledger_transactions (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS ledger_mining_jobs (
	id            TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL,
	currency      TEXT NOT NULL,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL,
	progress      DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_amount DOUBLE PRECISION NOT NULL,
	mined_amount  DOUBLE PRECISION NOT NULL DEFAULT 0,
	addresses     JSONB NOT NULL DEFAULT '[]',
	start_time    TIMESTAMPTZ NOT NULL,
	end_time      TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_mining_jobs_status
	ON ledger_mining_jobs (status);
CREATE INDEX IF NOT EXISTS idx_ledger_mining_jobs_account
	ON ledger_mining_jobs (account_id);

CREATE TABLE IF NOT EXISTS ledger_notifications (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}',
	priority   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_notifications_account
	ON ledger_notifications (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS ledger_audit_entries (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	action      TEXT NOT NULL,
	entity_ref  TEXT NOT NULL,
	description TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_audit_entries_account
	ON ledger_audit_entries (account_id, created_at DESC);
`

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	if acct.Balances == nil {
		acct.Balances = account.ZeroBalances()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_accounts (id, owner, status, trading_capital, trading_profit, robot_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, acct.ID, acct.Owner, acct.Status, acct.Trading.Capital, acct.Trading.Profit, acct.Trading.RobotActive, acct.CreatedAt, acct.UpdatedAt); err != nil {
			return err
		}
		for code, balance := range acct.Balances {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_balances (account_id, currency, balance)
				VALUES ($1, $2, $3)
			`, acct.ID, code, balance); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, owner, status, trading_capital, trading_profit, robot_active, created_at, updated_at
		FROM ledger_accounts
		WHERE id = $1
	`, id))
	if err != nil {
		return account.Account{}, err
	}

	balances, err := s.Balances(ctx, id)
	if err != nil {
		return account.Account{}, err
	}
	acct.Balances = balances
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, status, trading_capital, trading_profit, robot_active, created_at, updated_at
		FROM ledger_accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		balances, err := s.Balances(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Balances = balances
	}
	return result, nil
}

func (s *Store) SetAccountStatus(ctx context.Context, id string, status account.Status) (account.Account, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_accounts SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, fmt.Errorf("account %s: %w", id, account.ErrNotFound)
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ledger_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("account %s: %w", id, account.ErrNotFound)
	}
	return nil
}

func (s *Store) ActivateRobot(ctx context.Context, accountID string, seed float64) (account.TradingState, error) {
	// The seed applies only when capital is exactly zero, so re-activating
	// a drained or running robot never grants fresh capital.
	row := s.db.QueryRowContext(ctx, `
		UPDATE ledger_accounts
		SET robot_active = TRUE,
		    trading_capital = CASE WHEN trading_capital = 0 THEN $2 ELSE trading_capital END,
		    updated_at = $3
		WHERE id = $1
		RETURNING trading_capital, trading_profit, robot_active
	`, accountID, seed, time.Now().UTC())
	return scanTradingState(row, accountID)
}

func (s *Store) DeactivateRobot(ctx context.Context, accountID string) (account.TradingState, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE ledger_accounts
		SET robot_active = FALSE, updated_at = $2
		WHERE id = $1
		RETURNING trading_capital, trading_profit, robot_active
	`, accountID, time.Now().UTC())
	return scanTradingState(row, accountID)
}

func (s *Store) ApplyTradingResult(ctx context.Context, accountID string, capitalDelta, profitDelta float64) (account.TradingState, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE ledger_accounts
		SET trading_capital = GREATEST(trading_capital + $2, 0),
		    trading_profit = trading_profit + $3,
		    updated_at = $4
		WHERE id = $1
		RETURNING trading_capital, trading_profit, robot_active
	`, accountID, capitalDelta, profitDelta, time.Now().UTC())
	return scanTradingState(row, accountID)
}

func (s *Store) WithdrawTradingProfit(ctx context.Context, accountID string, tx transaction.Transaction) (float64, transaction.Transaction, error) {
	var amount float64
	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		row := sqlTx.QueryRowContext(ctx, `
			SELECT trading_profit FROM ledger_accounts WHERE id = $1 FOR UPDATE
		`, accountID)
		if err := row.Scan(&amount); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
			}
			return err
		}
		if amount <= 0 {
			return fmt.Errorf("account %s: %w", accountID, account.ErrNoProfitAvailable)
		}

		if _, err := sqlTx.ExecContext(ctx, `
			UPDATE ledger_accounts SET trading_profit = 0, updated_at = $2 WHERE id = $1
		`, accountID, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO ledger_balances (account_id, currency, balance)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_id, currency) DO UPDATE SET balance = ledger_balances.balance + $3
		`, accountID, currency.USD, amount); err != nil {
			return err
		}

		tx.AccountID = accountID
		tx.Amount = amount
		var err error
		tx, err = insertTransaction(ctx, sqlTx, tx)
		return err
	})
	if err != nil {
		return 0, transaction.Transaction{}, err
	}
	return amount, tx, nil
}

func (s *Store) ListTradingAccounts(ctx context.Context) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, status, trading_capital, trading_profit, robot_active, created_at, updated_at
		FROM ledger_accounts
		WHERE robot_active AND trading_capital > 0
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (account.Account, error) {
	var acct account.Account
	err := row.Scan(&acct.ID, &acct.Owner, &acct.Status,
		&acct.Trading.Capital, &acct.Trading.Profit, &acct.Trading.RobotActive,
		&acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	return acct, err
}

func scanTradingState(row *sql.Row, accountID string) (account.TradingState, error) {
	var state account.TradingState
	err := row.Scan(&state.Capital, &state.Profit, &state.RobotActive)
	if errors.Is(err, sql.ErrNoRows) {
		return account.TradingState{}, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
	}
	return state, err
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, accountID string, code currency.Code) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM ledger_balances WHERE account_id = $1 AND currency = $2
	`, accountID, code).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing balance row from a missing account.
		var exists bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT TRUE FROM ledger_accounts WHERE id = $1
		`, accountID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
			}
			return 0, err
		}
		return 0, nil
	}
	return balance, err
}

func (s *Store) Balances(ctx context.Context, accountID string) (map[currency.Code]float64, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT TRUE FROM ledger_accounts WHERE id = $1
	`, accountID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, balance FROM ledger_balances WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := account.ZeroBalances()
	for rows.Next() {
		var (
			code    currency.Code
			balance float64
		)
		if err := rows.Scan(&code, &balance); err != nil {
			return nil, err
		}
		balances[code] = balance
	}
	return balances, rows.Err()
}

func (s *Store) ApplyDelta(ctx context.Context, accountID string, code currency.Code, delta float64) (float64, error) {
	var balance float64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = applyDeltaTx(ctx, tx, accountID, code, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) Apply(ctx context.Context, accountID string, deltas []ledger.Delta, tx transaction.Transaction) (transaction.Transaction, error) {
	// Locking balance rows in currency order keeps concurrent multi-delta
	// applications deadlock free.
	ordered := make([]ledger.Delta, len(deltas))
	copy(ordered, deltas)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Currency < ordered[j].Currency })

	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		for _, d := range ordered {
			if _, err := applyDeltaTx(ctx, sqlTx, accountID, d.Currency, d.Amount); err != nil {
				return err
			}
		}
		var err error
		tx, err = insertTransaction(ctx, sqlTx, tx)
		return err
	})
	if err != nil {
		return transaction.Transaction{}, err
	}
	return tx, nil
}

// applyDeltaTx locks one balance row, checks the debit and writes the new
// balance. The row is created on first touch.
func applyDeltaTx(ctx context.Context, tx *sql.Tx, accountID string, code currency.Code, delta float64) (float64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_balances (account_id, currency, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (account_id, currency) DO NOTHING
	`, accountID, code); err != nil {
		return 0, err
	}

	var balance float64
	if err := tx.QueryRowContext(ctx, `
		SELECT balance FROM ledger_balances WHERE account_id = $1 AND currency = $2 FOR UPDATE
	`, accountID, code).Scan(&balance); err != nil {
		return 0, err
	}

	next := balance + delta
	if next < -ledger.Epsilon {
		return 0, fmt.Errorf("balance %.8f %s cannot cover %.8f: %w", balance, code, -delta, ledger.ErrInsufficientFunds)
	}
	if next < 0 {
		next = 0
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_balances SET balance = $3 WHERE account_id = $1 AND currency = $2
	`, accountID, code, next); err != nil {
		return 0, err
	}
	return next, nil
}

// --- TransactionStore -------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx transaction.Transaction) (transaction.Transaction, error) {
	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		var err error
		tx, err = insertTransaction(ctx, sqlTx, tx)
		return err
	})
	if err != nil {
		return transaction.Transaction{}, err
	}
	return tx, nil
}

func insertTransaction(ctx context.Context, sqlTx *sql.Tx, tx transaction.Transaction) (transaction.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Reference == "" {
		tx.Reference = transaction.NewReference()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO ledger_transactions
			(id, reference, account_id, kind, status, currency, amount,
			 from_currency, to_currency, converted_amount, exchange_rate,
			 hash, counterparty, description, estimated_completion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, tx.ID, tx.Reference, tx.AccountID, tx.Kind, tx.Status, tx.Currency, tx.Amount,
		tx.FromCurrency, tx.ToCurrency, tx.ConvertedAmount, tx.ExchangeRate,
		tx.Hash, tx.Counterparty, tx.Description, toNullTime(tx.EstimatedCompletion), tx.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return transaction.Transaction{}, fmt.Errorf("duplicate transaction reference %s", tx.Reference)
		}
		return transaction.Transaction{}, err
	}
	return tx, nil
}

const transactionColumns = `
	id, reference, account_id, kind, status, currency, amount,
	from_currency, to_currency, converted_amount, exchange_rate,
	hash, counterparty, description, estimated_completion, created_at`

func (s *Store) GetTransaction(ctx context.Context, id string) (transaction.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT`+transactionColumns+` FROM ledger_transactions WHERE id = $1`, id))
}

func (s *Store) GetTransactionByReference(ctx context.Context, ref string) (transaction.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT`+transactionColumns+` FROM ledger_transactions WHERE reference = $1`, ref))
}

func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+transactionColumns+` FROM ledger_transactions
		 WHERE $1 = '' OR account_id = $1
		 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func scanTransaction(row rowScanner) (transaction.Transaction, error) {
	var (
		tx  transaction.Transaction
		eta sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.Reference, &tx.AccountID, &tx.Kind, &tx.Status,
		&tx.Currency, &tx.Amount, &tx.FromCurrency, &tx.ToCurrency,
		&tx.ConvertedAmount, &tx.ExchangeRate, &tx.Hash, &tx.Counterparty,
		&tx.Description, &eta, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return transaction.Transaction{}, transaction.ErrNotFound
	}
	if err != nil {
		return transaction.Transaction{}, err
	}
	if eta.Valid {
		tx.EstimatedCompletion = eta.Time.UTC()
	}
	return tx, nil
}

// --- MiningStore ------------------------------------------------------------

func (s *Store) CreateJobsIfInactive(ctx context.Context, accountID string, jobs []mining.Job) ([]mining.Job, bool, error) {
	created := make([]mining.Job, 0, len(jobs))
	var skipped bool

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// The account row lock serialises concurrent toggles; without it two
		// requests could both pass the active-jobs check.
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT TRUE FROM ledger_accounts WHERE id = $1 FOR UPDATE
		`, accountID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("account %s: %w", accountID, account.ErrNotFound)
			}
			return err
		}

		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM ledger_mining_jobs WHERE account_id = $1 AND status IN ($2, $3)
		`, accountID, mining.StatusMining, mining.StatusSettling).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			skipped = true
			return nil
		}

		now := time.Now().UTC()
		for _, job := range jobs {
			if job.ID == "" {
				job.ID = uuid.NewString()
			}
			job.AccountID = accountID
			job.CreatedAt = now
			job.UpdatedAt = now
			if err := insertJob(ctx, tx, job); err != nil {
				return err
			}
			created = append(created, job)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if skipped {
		return nil, false, nil
	}
	return created, true, nil
}

func insertJob(ctx context.Context, tx *sql.Tx, job mining.Job) error {
	addressesJSON, err := json.Marshal(job.Addresses)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_mining_jobs
			(id, account_id, currency, type, status, progress, target_amount,
			 mined_amount, addresses, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, job.ID, job.AccountID, job.Currency, job.Type, job.Status, job.Progress,
		job.TargetAmount, job.MinedAmount, addressesJSON, job.StartTime,
		toNullTime(job.EndTime), job.CreatedAt, job.UpdatedAt)
	return err
}

const jobColumns = `
	id, account_id, currency, type, status, progress, target_amount,
	mined_amount, addresses, start_time, end_time, created_at, updated_at`

func (s *Store) GetJob(ctx context.Context, id string) (mining.Job, error) {
	return scanJob(s.db.QueryRowContext(ctx,
		`SELECT`+jobColumns+` FROM ledger_mining_jobs WHERE id = $1`, id))
}

func (s *Store) ListJobs(ctx context.Context, accountID string) ([]mining.Job, error) {
	return s.queryJobs(ctx,
		`SELECT`+jobColumns+` FROM ledger_mining_jobs WHERE account_id = $1 ORDER BY created_at`, accountID)
}

func (s *Store) ListActiveJobs(ctx context.Context) ([]mining.Job, error) {
	return s.queryJobs(ctx,
		`SELECT`+jobColumns+` FROM ledger_mining_jobs WHERE status = $1 ORDER BY created_at`, mining.StatusMining)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]mining.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []mining.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func scanJob(row rowScanner) (mining.Job, error) {
	var (
		job          mining.Job
		addressesRaw []byte
		endTime      sql.NullTime
	)
	err := row.Scan(&job.ID, &job.AccountID, &job.Currency, &job.Type, &job.Status,
		&job.Progress, &job.TargetAmount, &job.MinedAmount, &addressesRaw,
		&job.StartTime, &endTime, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mining.Job{}, mining.ErrNotFound
	}
	if err != nil {
		return mining.Job{}, err
	}
	if len(addressesRaw) > 0 {
		_ = json.Unmarshal(addressesRaw, &job.Addresses)
	}
	if endTime.Valid {
		job.EndTime = endTime.Time.UTC()
	}
	return job, nil
}

func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress float64) error {
	// Zero rows affected means the job completed or was cancelled between
	// listing and update; that is not an error.
	_, err := s.db.ExecContext(ctx, `
		UPDATE ledger_mining_jobs
		SET progress = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, progress, time.Now().UTC(), mining.StatusMining)
	return err
}

func (s *Store) ClaimJob(ctx context.Context, id string) (mining.Job, bool, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		UPDATE ledger_mining_jobs
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING`+jobColumns,
		id, mining.StatusSettling, time.Now().UTC(), mining.StatusMining))
	if errors.Is(err, mining.ErrNotFound) {
		// Distinguish an unclaimed job from a missing one.
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return mining.Job{}, false, getErr
		}
		return mining.Job{}, false, nil
	}
	if err != nil {
		return mining.Job{}, false, err
	}
	return job, true, nil
}

func (s *Store) CompleteJob(ctx context.Context, id string, minedAmount float64, endTime time.Time, successor mining.Job) (mining.Job, mining.Job, error) {
	var completed mining.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		completed, err = scanJob(tx.QueryRowContext(ctx, `
			UPDATE ledger_mining_jobs
			SET status = $2, progress = 100, mined_amount = $3, end_time = $4, updated_at = $5
			WHERE id = $1 AND status = $6
			RETURNING`+jobColumns,
			id, mining.StatusCompleted, minedAmount, endTime, time.Now().UTC(), mining.StatusSettling))
		if errors.Is(err, mining.ErrNotFound) {
			return fmt.Errorf("job %s is not settling: %w", id, mining.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if successor.ID == "" {
			successor.ID = uuid.NewString()
		}
		successor.AccountID = completed.AccountID
		now := time.Now().UTC()
		if successor.StartTime.IsZero() {
			successor.StartTime = now
		}
		successor.CreatedAt = now
		successor.UpdatedAt = now
		return insertJob(ctx, tx, successor)
	})
	if err != nil {
		return mining.Job{}, mining.Job{}, err
	}
	return completed, successor, nil
}

func (s *Store) CancelActiveJobs(ctx context.Context, accountID string) ([]mining.Job, error) {
	// Settling jobs are deliberately left alone; their credit is already
	// committed or in flight.
	rows, err := s.db.QueryContext(ctx, `
		UPDATE ledger_mining_jobs
		SET status = $2, end_time = $3, updated_at = $3
		WHERE account_id = $1 AND status = $4
		RETURNING`+jobColumns,
		accountID, mining.StatusCancelled, time.Now().UTC(), mining.StatusMining)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []mining.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func (s *Store) AppendJobAddress(ctx context.Context, id string, address string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var addressesRaw []byte
		if err := tx.QueryRowContext(ctx, `
			SELECT addresses FROM ledger_mining_jobs WHERE id = $1 FOR UPDATE
		`, id).Scan(&addressesRaw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return mining.ErrNotFound
			}
			return err
		}

		var addresses []string
		if len(addressesRaw) > 0 {
			_ = json.Unmarshal(addressesRaw, &addresses)
		}
		addresses = append(addresses, address)
		if len(addresses) > mining.AddressRingCap {
			addresses = addresses[len(addresses)-mining.AddressRingCap:]
		}

		updated, err := json.Marshal(addresses)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE ledger_mining_jobs SET addresses = $2, updated_at = $3 WHERE id = $1
		`, id, updated, time.Now().UTC())
		return err
	})
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	dataJSON, err := json.Marshal(n.Data)
	if err != nil {
		return notification.Notification{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_notifications (id, account_id, type, title, message, data, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.AccountID, n.Type, n.Title, n.Message, dataJSON, n.Priority, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, accountID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, title, message, data, priority, created_at
		FROM ledger_notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var (
			n       notification.Notification
			dataRaw []byte
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Type, &n.Title, &n.Message, &dataRaw, &n.Priority, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(dataRaw) > 0 {
			_ = json.Unmarshal(dataRaw, &n.Data)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// --- AuditStore -------------------------------------------------------------

func (s *Store) CreateAuditEntry(ctx context.Context, entry notification.AuditEntry) (notification.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_audit_entries (id, account_id, action, entity_ref, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.AccountID, entry.Action, entry.EntityRef, entry.Description, entry.Status, entry.CreatedAt)
	if err != nil {
		return notification.AuditEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListAuditEntries(ctx context.Context, accountID string) ([]notification.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, action, entity_ref, description, status, created_at
		FROM ledger_audit_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.AuditEntry
	for rows.Next() {
		var entry notification.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Action, &entry.EntityRef, &entry.Description, &entry.Status, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
