package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	transferOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Subsystem: "transfer",
			Name:      "operations_total",
			Help:      "Total number of transfer engine operations.",
		},
		[]string{"kind", "result"},
	)

	miningCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Subsystem: "mining",
			Name:      "completions_total",
			Help:      "Total number of mining cycle completions.",
		},
		[]string{"currency"},
	)

	miningSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger_engine",
			Subsystem: "mining",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of mining completion sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	tradingCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Subsystem: "trading",
			Name:      "cycles_total",
			Help:      "Total number of per-account trading cycle executions.",
		},
		[]string{"outcome"},
	)

	alertsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Outbound notifications or audit entries dropped on a full queue.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transferOps,
		miningCompletions,
		miningSweepDuration,
		tradingCycles,
		alertsDropped,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTransfer counts a transfer engine operation.
func RecordTransfer(kind string, success bool) {
	result := "failed"
	if success {
		result = "ok"
	}
	transferOps.WithLabelValues(kind, result).Inc()
}

// RecordMiningCompletion counts one credited mining cycle.
func RecordMiningCompletion(currency string) {
	miningCompletions.WithLabelValues(currency).Inc()
}

// RecordMiningSweep records the duration of a completion sweep.
func RecordMiningSweep(duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	miningSweepDuration.Observe(duration.Seconds())
}

// RecordTradingCycle counts one per-account trading cycle by outcome.
func RecordTradingCycle(outcome string) {
	tradingCycles.WithLabelValues(outcome).Inc()
}

// RecordAlertDropped counts an outbound record dropped on a full queue.
func RecordAlertDropped(kind string) {
	alertsDropped.WithLabelValues(kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "accounts" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/accounts"
	}
	if len(parts) == 2 {
		return "/accounts/:account"
	}
	resource := parts[2]
	path := "/accounts/:account/" + resource
	if len(parts) > 3 {
		path += "/" + parts[3]
	}
	return path
}
