package mining

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
	"github.com/apexvault/ledger_engine/internal/app/domain/transaction"
	"github.com/apexvault/ledger_engine/internal/app/storage"
	"github.com/apexvault/ledger_engine/internal/app/system"
	"github.com/apexvault/ledger_engine/pkg/logger"
)

var _ system.Service = (*AddressGenerator)(nil)

const (
	addressBodyLength   = 40
	addressBodyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// AddressGenerator periodically appends synthesised pseudo-addresses to
// active crypto jobs. This is decorative telemetry: the addresses never
// affect balances and are not wallet provisioning. The limiter bounds
// throughput so the generator cannot dominate the store.
type AddressGenerator struct {
	store    storage.MiningStore
	log      *logger.Logger
	interval time.Duration
	limiter  *rate.Limiter
	rng      *rand.Rand

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewAddressGenerator creates a lifecycle-managed address generator.
func NewAddressGenerator(store storage.MiningStore, log *logger.Logger) *AddressGenerator {
	if log == nil {
		log = logger.NewDefault("mining-addresses")
	}
	return &AddressGenerator{
		store:    store,
		log:      log,
		interval: time.Second,
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithInterval overrides the generation interval. Call before Start.
func (g *AddressGenerator) WithInterval(interval time.Duration) *AddressGenerator {
	if interval > 0 {
		g.interval = interval
	}
	return g
}

func (g *AddressGenerator) Name() string { return "mining-address-generator" }

func (g *AddressGenerator) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				g.Tick(runCtx)
			}
		}
	}()

	g.log.Info("mining address generator started")
	return nil
}

func (g *AddressGenerator) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	cancel := g.cancel
	g.running = false
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.log.Info("mining address generator stopped")
	return nil
}

// Tick picks a random crypto currency, synthesises one pseudo-address and
// appends it to an arbitrary active job for that currency. Exported so
// tests can drive it without the timer.
func (g *AddressGenerator) Tick(ctx context.Context) {
	if !g.limiter.Allow() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	jobs, err := g.store.ListActiveJobs(ctx)
	if err != nil {
		g.log.WithError(err).Warn("address generator: list active jobs failed")
		return
	}

	g.mu.Lock()
	code := currency.Crypto()[g.rng.Intn(len(currency.Crypto()))]
	g.mu.Unlock()

	candidates := jobs[:0]
	for _, job := range jobs {
		if job.Currency == code {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return
	}

	g.mu.Lock()
	target := candidates[g.rng.Intn(len(candidates))]
	g.mu.Unlock()

	address := SynthesizeAddress(code)
	if err := g.store.AppendJobAddress(ctx, target.ID, address); err != nil {
		g.log.WithError(err).
			WithField("job_id", target.ID).
			Warn("address generator: append failed")
	}
}

// SynthesizeAddress builds a pseudo-address for a crypto currency: the
// currency-specific prefix followed by 40 random alphanumerics.
func SynthesizeAddress(code currency.Code) string {
	return currency.AddressPrefix(code) + transaction.RandomToken(addressBodyAlphabet, addressBodyLength)
}
