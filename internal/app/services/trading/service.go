package trading

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/metrics"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

const (
	// SeedCapital is granted when the robot is first activated with zero
	// capital.
	SeedCapital = 10000.0
	// winProbability is the fixed chance of a profitable cycle outcome.
	winProbability = 0.65
	// lossFactor is the share of the trade amount lost on an unprofitable
	// outcome.
	lossFactor = 0.02
	// notifyThreshold is the per-cycle profit above which a notification
	// is emitted.
	notifyThreshold = 50.0

	tradeFractionMin = 0.01
	tradeFractionMax = 0.05
	profitMarginMin  = 0.02
	profitMarginMax  = 0.08
)

// Alerter records fire-and-forget side effects of trading mutations.
type Alerter interface {
	Notify(accountID, typ, title, message string, data map[string]string, priority notification.Priority)
	Audit(accountID, action, entityRef, description, status string)
}

// Service owns the trading robot: toggling it, running stochastic cycles
// against the capital/profit sub-state, and withdrawing accumulated profit
// into the USD ledger balance.
type Service struct {
	accounts storage.AccountStore
	txns     storage.TransactionStore
	alerter  Alerter
	log      *logger.Logger

	randMu sync.Mutex
	rng    *rand.Rand
}

// New creates a configured trading service.
func New(accounts storage.AccountStore, txns storage.TransactionStore, alerter Alerter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trading")
	}
	return &Service{
		accounts: accounts,
		txns:     txns,
		alerter:  alerter,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source. Call before the robot starts; used
// by tests for deterministic outcomes.
func (s *Service) WithRand(rng *rand.Rand) *Service {
	s.randMu.Lock()
	s.rng = rng
	s.randMu.Unlock()
	return s
}

// SetRobot toggles the trading robot. Activation seeds capital only when
// the current capital is zero (the seed check runs atomically inside the
// store); deactivation stops future cycles but leaves capital and profit
// untouched.
func (s *Service) SetRobot(ctx context.Context, accountID string, active bool) (account.TradingState, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return account.TradingState{}, fmt.Errorf("account_id is required: %w", account.ErrNotFound)
	}

	if !active {
		state, err := s.accounts.DeactivateRobot(ctx, accountID)
		if err != nil {
			return account.TradingState{}, err
		}
		s.log.WithField("account_id", accountID).Info("trading robot stopped")
		return state, nil
	}

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return account.TradingState{}, err
	}
	if acct.Status != account.StatusActive {
		return account.TradingState{}, fmt.Errorf("account %s is %s: %w", accountID, acct.Status, account.ErrNotActive)
	}

	state, err := s.accounts.ActivateRobot(ctx, accountID, SeedCapital)
	if err != nil {
		return account.TradingState{}, err
	}
	s.log.WithField("account_id", accountID).
		WithField("capital", state.Capital).
		Info("trading robot started")
	return state, nil
}

// State returns an account's trading sub-state.
func (s *Service) State(ctx context.Context, accountID string) (account.TradingState, error) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return account.TradingState{}, err
	}
	return acct.Trading, nil
}

// WithdrawProfit moves the entire profit balance into the USD ledger
// balance and zeroes profit, as one atomic store mutation. Fails with
// account.ErrNoProfitAvailable when there is nothing to withdraw.
func (s *Service) WithdrawProfit(ctx context.Context, accountID string) (transaction.Transaction, error) {
	tx := transaction.Transaction{
		Reference:   transaction.NewReference(),
		Kind:        transaction.KindTrading,
		Status:      transaction.StatusCompleted,
		Currency:    currency.USD,
		Description: "Trading profit withdrawal",
	}
	amount, created, err := s.accounts.WithdrawTradingProfit(ctx, accountID, tx)
	if err != nil {
		return transaction.Transaction{}, err
	}

	if s.alerter != nil {
		s.alerter.Notify(accountID, "profit_withdrawn", "Profit withdrawn",
			fmt.Sprintf("Withdrew %.2f USD of trading profit", amount),
			map[string]string{"reference": created.Reference},
			notification.PriorityNormal)
		s.alerter.Audit(accountID, "profit_withdrawn", created.Reference,
			fmt.Sprintf("Moved %.2f trading profit to USD balance", amount),
			string(transaction.StatusCompleted))
	}

	s.log.WithField("account_id", accountID).
		WithField("amount", amount).
		Info("trading profit withdrawn")
	return created, nil
}

// RunCycle executes one stochastic trading cycle for an account: draw an
// outcome, size the trade from current capital, and apply the result. The
// capital floor at zero is enforced inside the store mutation, not here.
func (s *Service) RunCycle(ctx context.Context, acct account.Account) error {
	capital := acct.Trading.Capital
	if capital <= 0 {
		return nil
	}

	s.randMu.Lock()
	outcomeDraw := s.rng.Float64()
	tradeFraction := tradeFractionMin + s.rng.Float64()*(tradeFractionMax-tradeFractionMin)
	profitMargin := profitMarginMin + s.rng.Float64()*(profitMarginMax-profitMarginMin)
	s.randMu.Unlock()

	tradeAmount := capital * tradeFraction
	profitable := outcomeDraw < winProbability

	var capitalDelta, profitDelta float64
	outcome := "profitable"
	if profitable {
		profitDelta = tradeAmount * profitMargin
	} else {
		outcome = "unprofitable"
		capitalDelta = -tradeAmount * lossFactor
	}

	state, err := s.accounts.ApplyTradingResult(ctx, acct.ID, capitalDelta, profitDelta)
	if err != nil {
		return fmt.Errorf("apply trading result for %s: %w", acct.ID, err)
	}

	tx := transaction.Transaction{
		Reference:   transaction.NewReference(),
		AccountID:   acct.ID,
		Kind:        transaction.KindTrading,
		Status:      transaction.StatusCompleted,
		Currency:    currency.USD,
		Amount:      tradeAmount,
		Description: fmt.Sprintf("Trading cycle %s: trade %.2f, profit %.2f, capital change %.2f", outcome, tradeAmount, profitDelta, capitalDelta),
	}
	if _, err := s.txns.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("record trading transaction for %s: %w", acct.ID, err)
	}

	if s.alerter != nil && profitDelta > notifyThreshold {
		s.alerter.Notify(acct.ID, "trading_profit", "Trading profit",
			fmt.Sprintf("Robot earned %.2f this cycle", profitDelta),
			map[string]string{"reference": tx.Reference},
			notification.PriorityHigh)
	}
	metrics.RecordTradingCycle(outcome)

	s.log.WithField("account_id", acct.ID).
		WithField("outcome", outcome).
		WithField("trade_amount", tradeAmount).
		WithField("capital", state.Capital).
		WithField("profit", state.Profit).
		Debug("trading cycle applied")
	return nil
}
