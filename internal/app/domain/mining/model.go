package mining

import (
	"errors"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
)

// Type distinguishes fiat-currency jobs from crypto jobs.
type Type string

const (
	TypeCurrency Type = "currency"
	TypeCrypto   Type = "crypto"
)

// Status is a mining job's lifecycle state. Settling is the exclusive-claim
// marker taken by the completion sweep before crediting, so overlapping
// sweeps credit each job at most once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMining    Status = "mining"
	StatusSettling  Status = "settling"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned when no job exists for the identifier.
var ErrNotFound = errors.New("mining job not found")

// AddressRingCap bounds the per-job generated-address ring. Oldest entries
// are evicted first.
const AddressRingCap = 100

// CycleDuration is the fixed accrual period of one mining cycle.
const CycleDuration = time.Hour

// Job is a per-account, per-currency accrual process. Completion is
// time-triggered by the sweep; Progress is interpolated cosmetics.
type Job struct {
	ID           string
	AccountID    string
	Currency     currency.Code
	Type         Type
	Status       Status
	Progress     float64
	TargetAmount float64
	MinedAmount  float64
	Addresses    []string
	StartTime    time.Time
	EndTime      time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FiatTarget is the per-cycle credit for every fiat job.
const FiatTarget = 1000.0

// cryptoTargets holds the per-cycle credit for each crypto job.
var cryptoTargets = map[currency.Code]float64{
	currency.BTC: 0.05,
	currency.ETH: 0.5,
	currency.TON: 100,
	currency.TRX: 5000,
}

// TargetFor returns the per-cycle credit for a currency.
func TargetFor(code currency.Code) float64 {
	if target, ok := cryptoTargets[code]; ok {
		return target
	}
	return FiatTarget
}

// TypeFor returns the job type for a currency.
func TypeFor(code currency.Code) Type {
	if currency.IsCrypto(code) {
		return TypeCrypto
	}
	return TypeCurrency
}

// InterpolateProgress returns the cosmetic progress percentage for a job
// started at startTime, clamped to [0,100]. Recomputing with no elapsed
// time yields the same value.
func InterpolateProgress(startTime, now time.Time) float64 {
	if now.Before(startTime) {
		return 0
	}
	progress := now.Sub(startTime).Seconds() / CycleDuration.Seconds() * 100
	if progress > 100 {
		return 100
	}
	return progress
}
