package ledger

import (
	"errors"

	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
)

// ErrInsufficientFunds is returned when a debit would drive a balance
// negative. The ledger store is the single enforcement point; callers may
// pre-check optimistically but the store re-verifies under its own lock.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Epsilon is the tolerance used when comparing balances.
const Epsilon = 1e-9

// Delta is one signed balance mutation within an atomic unit.
type Delta struct {
	Currency currency.Code
	Amount   float64
}
