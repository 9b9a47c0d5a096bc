package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/ledger"
	"github.com/apexvault/ledger_engine/internal/app/domain/notification"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/metrics"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

var (
	// ErrSameCurrency rejects conversions where source and target match.
	ErrSameCurrency = errors.New("source and target currency are the same")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrUnknownCurrency rejects currencies outside the supported set.
	ErrUnknownCurrency = errors.New("unsupported currency")
	// ErrNotCrypto rejects crypto sends in a fiat currency.
	ErrNotCrypto = errors.New("currency is not a crypto currency")
)

// internationalETA is the estimated settlement window stamped on
// international transfers.
const internationalETA = 24 * time.Hour

// Alerter records fire-and-forget side effects of a ledger mutation.
type Alerter interface {
	Notify(accountID, typ, title, message string, data map[string]string, priority notification.Priority)
	Audit(accountID, action, entityRef, description, status string)
}

// Service is the transfer engine: it validates user-initiated balance
// mutations and applies them through the ledger store as single atomic
// units. The store is the authoritative guard for the non-negative-balance
// invariant; pre-checks here only shortcut the obvious failures.
type Service struct {
	accounts storage.AccountStore
	ledger   storage.LedgerStore
	alerter  Alerter
	log      *logger.Logger
}

// New creates a configured transfer engine.
func New(accounts storage.AccountStore, ledgerStore storage.LedgerStore, alerter Alerter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("transfer")
	}
	return &Service{
		accounts: accounts,
		ledger:   ledgerStore,
		alerter:  alerter,
		log:      log,
	}
}

// Send debits amount from the account's balance and records a completed
// transaction. Fails with ledger.ErrInsufficientFunds when the balance
// cannot cover the debit; the balance is left untouched.
func (s *Service) Send(ctx context.Context, accountID string, code currency.Code, amount float64, recipient string) (transaction.Transaction, error) {
	if err := s.validate(ctx, accountID, code, amount); err != nil {
		metrics.RecordTransfer(string(transaction.KindSend), false)
		return transaction.Transaction{}, err
	}

	tx := transaction.Transaction{
		Reference:    transaction.NewReference(),
		Kind:         transaction.KindSend,
		Status:       transaction.StatusCompleted,
		Currency:     code,
		Amount:       amount,
		Counterparty: strings.TrimSpace(recipient),
	}
	created, err := s.ledger.Apply(ctx, accountID, []ledger.Delta{{Currency: code, Amount: -amount}}, tx)
	if err != nil {
		metrics.RecordTransfer(string(transaction.KindSend), false)
		return transaction.Transaction{}, err
	}

	s.sideEffects(accountID, created, "transfer_sent",
		fmt.Sprintf("Sent %.2f %s to %s", amount, code, created.Counterparty))
	metrics.RecordTransfer(string(transaction.KindSend), true)
	return created, nil
}

// Receive credits amount to the account's balance. Credits never fail on
// funds.
func (s *Service) Receive(ctx context.Context, accountID string, code currency.Code, amount float64, sender string) (transaction.Transaction, error) {
	if err := s.validate(ctx, accountID, code, amount); err != nil {
		metrics.RecordTransfer(string(transaction.KindReceive), false)
		return transaction.Transaction{}, err
	}

	tx := transaction.Transaction{
		Reference:    transaction.NewReference(),
		Kind:         transaction.KindReceive,
		Status:       transaction.StatusCompleted,
		Currency:     code,
		Amount:       amount,
		Counterparty: strings.TrimSpace(sender),
	}
	created, err := s.ledger.Apply(ctx, accountID, []ledger.Delta{{Currency: code, Amount: amount}}, tx)
	if err != nil {
		metrics.RecordTransfer(string(transaction.KindReceive), false)
		return transaction.Transaction{}, err
	}

	s.sideEffects(accountID, created, "transfer_received",
		fmt.Sprintf("Received %.2f %s", amount, code))
	metrics.RecordTransfer(string(transaction.KindReceive), true)
	return created, nil
}

// Convert moves amount between two of the account's own currency balances
// at the static table rate. The debit and credit commit as one atomic
// ledger unit; no partial application is ever visible.
func (s *Service) Convert(ctx context.Context, accountID string, from, to currency.Code, amount float64) (transaction.Transaction, error) {
	if from == to {
		metrics.RecordTransfer(string(transaction.KindTransfer), false)
		return transaction.Transaction{}, ErrSameCurrency
	}
	if !currency.Valid(to) {
		metrics.RecordTransfer(string(transaction.KindTransfer), false)
		return transaction.Transaction{}, fmt.Errorf("%s: %w", to, ErrUnknownCurrency)
	}
	if err := s.validate(ctx, accountID, from, amount); err != nil {
		metrics.RecordTransfer(string(transaction.KindTransfer), false)
		return transaction.Transaction{}, err
	}

	converted, rate := currency.Convert(amount, from, to)

	tx := transaction.Transaction{
		Reference:       transaction.NewReference(),
		Kind:            transaction.KindTransfer,
		Status:          transaction.StatusCompleted,
		FromCurrency:    from,
		ToCurrency:      to,
		Amount:          amount,
		ConvertedAmount: converted,
		ExchangeRate:    rate,
	}
	deltas := []ledger.Delta{
		{Currency: from, Amount: -amount},
		{Currency: to, Amount: converted},
	}
	created, err := s.ledger.Apply(ctx, accountID, deltas, tx)
	if err != nil {
		metrics.RecordTransfer(string(transaction.KindTransfer), false)
		return transaction.Transaction{}, err
	}

	s.sideEffects(accountID, created, "currency_converted",
		fmt.Sprintf("Converted %.2f %s to %.2f %s at %.6f", amount, from, converted, to, rate))
	metrics.RecordTransfer(string(transaction.KindTransfer), true)
	return created, nil
}

// International debits immediately like Send but records a processing
// transaction with a 24h estimated completion. Nothing advances it to
// completed; settlement is an external escalation path.
func (s *Service) International(ctx context.Context, accountID string, code currency.Code, amount float64, recipient string) (transaction.Transaction, error) {
	if err := s.validate(ctx, accountID, code, amount); err != nil {
		metrics.RecordTransfer(string(transaction.KindInternational), false)
		return transaction.Transaction{}, err
	}

	tx := transaction.Transaction{
		Reference:           transaction.NewReference(),
		Kind:                transaction.KindInternational,
		Status:              transaction.StatusProcessing,
		Currency:            code,
		Amount:              amount,
		Counterparty:        strings.TrimSpace(recipient),
		EstimatedCompletion: time.Now().UTC().Add(internationalETA),
	}
	created, err := s.ledger.Apply(ctx, accountID, []ledger.Delta{{Currency: code, Amount: -amount}}, tx)
	if err != nil {
		metrics.RecordTransfer(string(transaction.KindInternational), false)
		return transaction.Transaction{}, err
	}

	s.sideEffects(accountID, created, "international_transfer",
		fmt.Sprintf("International transfer of %.2f %s to %s processing", amount, code, created.Counterparty))
	metrics.RecordTransfer(string(transaction.KindInternational), true)
	return created, nil
}

// CryptoSend is Send for a crypto currency, additionally stamped with an
// opaque 64-hex transaction hash.
func (s *Service) CryptoSend(ctx context.Context, accountID string, code currency.Code, amount float64, address string) (transaction.Transaction, error) {
	if !currency.IsCrypto(code) {
		metrics.RecordTransfer(string(transaction.KindCryptoSend), false)
		return transaction.Transaction{}, fmt.Errorf("%s: %w", code, ErrNotCrypto)
	}
	if err := s.validate(ctx, accountID, code, amount); err != nil {
		metrics.RecordTransfer(string(transaction.KindCryptoSend), false)
		return transaction.Transaction{}, err
	}

	tx := transaction.Transaction{
		Reference:    transaction.NewReference(),
		Kind:         transaction.KindCryptoSend,
		Status:       transaction.StatusCompleted,
		Currency:     code,
		Amount:       amount,
		Counterparty: strings.TrimSpace(address),
		Hash:         transaction.NewHash(),
	}
	created, err := s.ledger.Apply(ctx, accountID, []ledger.Delta{{Currency: code, Amount: -amount}}, tx)
	if err != nil {
		metrics.RecordTransfer(string(transaction.KindCryptoSend), false)
		return transaction.Transaction{}, err
	}

	s.sideEffects(accountID, created, "crypto_sent",
		fmt.Sprintf("Sent %.8f %s to %s", amount, code, created.Counterparty))
	metrics.RecordTransfer(string(transaction.KindCryptoSend), true)
	return created, nil
}

// validate checks the request shape and that the account exists and is
// active. Balance sufficiency is not checked here: the ledger store
// re-verifies under its own lock, which is the authoritative guard.
func (s *Service) validate(ctx context.Context, accountID string, code currency.Code, amount float64) error {
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("account_id is required: %w", account.ErrNotFound)
	}
	if !currency.Valid(code) {
		return fmt.Errorf("%s: %w", code, ErrUnknownCurrency)
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Status != account.StatusActive {
		return fmt.Errorf("account %s is %s: %w", accountID, acct.Status, account.ErrNotActive)
	}
	return nil
}

func (s *Service) sideEffects(accountID string, tx transaction.Transaction, action, description string) {
	s.log.WithField("account_id", accountID).
		WithField("reference", tx.Reference).
		WithField("kind", string(tx.Kind)).
		Info("transfer applied")

	if s.alerter == nil {
		return
	}
	s.alerter.Notify(accountID, action, "Transaction "+string(tx.Status),
		description, map[string]string{"reference": tx.Reference}, notification.PriorityNormal)
	s.alerter.Audit(accountID, action, tx.Reference, description, string(tx.Status))
}
