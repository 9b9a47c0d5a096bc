package app

import (
	"context"
	"fmt"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/services/accounts"
	"github.com/apexvault/ledger_engine/internal/app/services/alerts"
	miningsvc "github.com/apexvault/ledger_engine/internal/app/services/mining"
	tradingsvc "github.com/apexvault/ledger_engine/internal/app/services/trading"
	"github.com/apexvault/ledger_engine/internal/app/services/transfer"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/internal/app/storage/memory"
	"github.com/apexvault/ledger_engine/internal/app/system"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts      storage.AccountStore
	Ledger        storage.LedgerStore
	Transactions  storage.TransactionStore
	Mining        storage.MiningStore
	Notifications storage.NotificationStore
	Audit         storage.AuditStore
}

// Config tunes the background simulators. Zero values fall back to the
// production defaults (1m progress tick, hourly sweep, 1s address
// generation, 1m trading cycle).
type Config struct {
	MiningProgressInterval time.Duration
	MiningSweepSchedule    string
	AddressInterval        time.Duration
	TradingInterval        time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts  *accounts.Service
	Transfers *transfer.Service
	Mining    *miningsvc.Service
	Trading   *tradingsvc.Service
	Alerts    *alerts.Dispatcher

	Transactions  storage.TransactionStore
	Notifications storage.NotificationStore
	Audit         storage.AuditStore
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Transactions == nil {
		stores.Transactions = mem
	}
	if stores.Mining == nil {
		stores.Mining = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}

	manager := system.NewManager()

	dispatcher := alerts.NewDispatcher(stores.Notifications, stores.Audit, log)
	acctService := accounts.New(stores.Accounts, stores.Ledger, log)
	transferService := transfer.New(stores.Accounts, stores.Ledger, dispatcher, log)
	miningService := miningsvc.New(stores.Accounts, stores.Ledger, stores.Mining, dispatcher, log)
	tradingService := tradingsvc.New(stores.Accounts, stores.Transactions, dispatcher, log)

	progress := miningsvc.NewProgressTicker(stores.Mining, log)
	if cfg.MiningProgressInterval > 0 {
		progress.WithInterval(cfg.MiningProgressInterval)
	}
	sweeper := miningsvc.NewSweeper(miningService, stores.Mining, log)
	if cfg.MiningSweepSchedule != "" {
		sweeper.WithSchedule(cfg.MiningSweepSchedule)
	}
	addresses := miningsvc.NewAddressGenerator(stores.Mining, log)
	if cfg.AddressInterval > 0 {
		addresses.WithInterval(cfg.AddressInterval)
	}
	robot := tradingsvc.NewRobot(stores.Accounts, tradingService, log)
	if cfg.TradingInterval > 0 {
		robot.WithInterval(cfg.TradingInterval)
	}

	for _, svc := range []system.Service{dispatcher, progress, sweeper, addresses, robot} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Accounts:      acctService,
		Transfers:     transferService,
		Mining:        miningService,
		Trading:       tradingService,
		Alerts:        dispatcher,
		Transactions:  stores.Transactions,
		Notifications: stores.Notifications,
		Audit:         stores.Audit,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
