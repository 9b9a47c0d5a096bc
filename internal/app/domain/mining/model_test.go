package mining

import (
	"testing"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
)

func TestInterpolateProgress(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := InterpolateProgress(start, start); got != 0 {
		t.Fatalf("progress at start = %v, want 0", got)
	}
	if got := InterpolateProgress(start, start.Add(CycleDuration/2)); got != 50 {
		t.Fatalf("progress at half cycle = %v, want 50", got)
	}
	if got := InterpolateProgress(start, start.Add(2*CycleDuration)); got != 100 {
		t.Fatalf("progress past the cycle = %v, want clamped to 100", got)
	}
	if got := InterpolateProgress(start, start.Add(-time.Minute)); got != 0 {
		t.Fatalf("progress before start = %v, want 0", got)
	}

	// Re-evaluating at the same instant must be stable.
	at := start.Add(20 * time.Minute)
	if InterpolateProgress(start, at) != InterpolateProgress(start, at) {
		t.Fatal("interpolation not deterministic for a fixed instant")
	}
}

func TestTargets(t *testing.T) {
	for _, code := range currency.Fiat() {
		if TargetFor(code) != FiatTarget {
			t.Fatalf("target for %s = %v, want %v", code, TargetFor(code), FiatTarget)
		}
		if TypeFor(code) != TypeCurrency {
			t.Fatalf("type for %s = %s, want currency", code, TypeFor(code))
		}
	}

	crypto := map[currency.Code]float64{
		currency.BTC: 0.05,
		currency.ETH: 0.5,
		currency.TON: 100,
		currency.TRX: 5000,
	}
	for code, want := range crypto {
		if TargetFor(code) != want {
			t.Fatalf("target for %s = %v, want %v", code, TargetFor(code), want)
		}
		if TypeFor(code) != TypeCrypto {
			t.Fatalf("type for %s = %s, want crypto", code, TypeFor(code))
		}
	}
}
