package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/apexvault/ledger_engine/internal/app/domain/account"
	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

// Service manages account records. Balance mutation is not exposed here;
// that goes through the ledger store via the transfer engine.
type Service struct {
	store  storage.AccountStore
	ledger storage.LedgerStore
	log    *logger.Logger
}

// New creates a configured account service.
func New(store storage.AccountStore, ledgerStore storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, ledger: ledgerStore, log: log}
}

// Create provisions an active account with zeroed balances across the full
// currency set.
func (s *Service) Create(ctx context.Context, owner string) (account.Account, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return account.Account{}, fmt.Errorf("owner is required")
	}

	acct, err := s.store.CreateAccount(ctx, account.Account{
		Owner:    owner,
		Status:   account.StatusActive,
		Balances: account.ZeroBalances(),
	})
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("account_id", acct.ID).Info("account created")
	return acct, nil
}

// Get fetches an account by identifier.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]account.Account, error) {
	return s.store.ListAccounts(ctx)
}

// SetStatus moves an account through its lifecycle.
func (s *Service) SetStatus(ctx context.Context, id string, status account.Status) (account.Account, error) {
	switch status {
	case account.StatusActive, account.StatusSuspended, account.StatusBanned:
	default:
		return account.Account{}, fmt.Errorf("unknown account status %q", status)
	}
	acct, err := s.store.SetAccountStatus(ctx, id, status)
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("account_id", id).
		WithField("status", string(status)).
		Info("account status changed")
	return acct, nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteAccount(ctx, id)
}

// Balances returns the account's per-currency balances.
func (s *Service) Balances(ctx context.Context, id string) (map[currency.Code]float64, error) {
	return s.ledger.Balances(ctx, id)
}
