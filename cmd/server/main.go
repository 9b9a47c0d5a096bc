// Package main runs the ledger engine HTTP server: the account ledger,
// the transfer engine, and the mining and trading simulators.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	app "github.com/apexvault/ledger_engine/internal/app"
	"github.com/apexvault/ledger_engine/internal/app/httpapi"
	"github.com/apexvault/ledger_engine/internal/app/metrics"
	"github.com/apexvault/ledger_engine/internal/app/storage/postgres"
	"github.com/apexvault/ledger_engine/internal/config"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the optional YAML config file")
	flag.Parse()

	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("server").WithError(err).Fatal("load configuration")
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialise storage")
	}
	defer cleanup()

	application, err := app.New(stores, app.Config{
		MiningProgressInterval: cfg.Simulation.MiningProgressInterval,
		MiningSweepSchedule:    cfg.Simulation.MiningSweepSchedule,
		AddressInterval:        cfg.Simulation.AddressInterval,
		TradingInterval:        cfg.Simulation.TradingInterval,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application services")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(httpapi.NewHandler(application)))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application services shutdown")
	}
	log.Info("server stopped")
}

// buildStores wires the configured storage backend. The memory driver
// needs no setup; postgres opens a pool and ensures the schema.
func buildStores(cfg config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.Driver != "postgres" {
		// Zero-value Stores fall back to the shared in-memory store.
		return app.Stores{}, func() {}, nil
	}

	store, err := postgres.Open(postgres.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.Database.ConnLifetime,
	}, log)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		store.Close()
		return app.Stores{}, nil, err
	}

	log.Info("postgres storage ready")
	return app.Stores{
		Accounts:      store,
		Ledger:        store,
		Transactions:  store,
		Mining:        store,
		Notifications: store,
		Audit:         store,
	}, func() { store.Close() }, nil
}
