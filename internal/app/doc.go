// Package app composes the ledger engine: it wires the domain services
// (accounts, transfers, mining, trading), the storage backends and the
// background simulators into one lifecycle-managed application.
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── account/        # Accounts and the trading sub-state
//	│   ├── currency/       # Supported currency set and the rate table
//	│   ├── ledger/         # Balance deltas and ledger invariants
//	│   ├── mining/         # Mining jobs and cycle constants
//	│   ├── notification/   # Notifications and audit entries
//	│   └── transaction/    # Transaction log records
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces and their atomicity contracts
//	│   ├── memory/         # In-memory implementation
//	│   └── postgres/       # PostgreSQL implementation
//	├── services/           # Business logic
//	│   ├── accounts/       # Account lifecycle
//	│   ├── transfer/       # The transfer engine
//	│   ├── mining/         # Mining simulator: jobs, sweep, addresses
//	│   ├── trading/        # Trading simulator: robot and cycles
//	│   └── alerts/         # Async notification/audit dispatcher
//	├── httpapi/            # HTTP handlers and routing
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus metrics
//
// Business rules that guard concurrency invariants (non-negative balances,
// exactly-once mining credits, trading capital floors) live behind the
// storage interfaces as conditional mutations; services stay free of
// check-then-act races by construction.
package app
