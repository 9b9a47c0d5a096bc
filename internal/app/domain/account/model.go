package account

import (
	"errors"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
)

// Status is an account's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

var (
	// ErrNotFound is returned when no account exists for the identifier.
	ErrNotFound = errors.New("account not found")
	// ErrNotActive is returned when an operation requires an active account.
	ErrNotActive = errors.New("account is not active")
	// ErrNoProfitAvailable is returned when a profit withdrawal is
	// requested with nothing to withdraw.
	ErrNoProfitAvailable = errors.New("no profit available")
)

// TradingState is the per-account trading robot sub-state. Capital and
// profit are held outside the currency balances until profit is withdrawn.
type TradingState struct {
	Capital     float64
	Profit      float64
	RobotActive bool
}

// Account is a multi-currency balance holder. Every balance is non-negative
// at all times; mutation goes through the ledger store, never through
// direct writes.
type Account struct {
	ID        string
	Owner     string
	Status    Status
	Balances  map[currency.Code]float64
	Trading   TradingState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ZeroBalances returns a balance map covering the full currency set.
func ZeroBalances() map[currency.Code]float64 {
	balances := make(map[currency.Code]float64, len(currency.All()))
	for _, code := range currency.All() {
		balances[code] = 0
	}
	return balances
}
