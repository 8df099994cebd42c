package observability

import (
	"time"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the POS core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so a host application can mount a /metrics endpoint.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	paymentsTotal   *prometheus.CounterVec
	receiptsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// client metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pos_request_duration_seconds",
				Help:    "Duration of backend requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		requestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_request_errors_total",
				Help: "Total failed backend requests by operation.",
			},
			[]string{"operation"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_requests_total",
				Help: "Total backend requests by outcome.",
			},
			[]string{"status"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		paymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_payments_total",
				Help: "Payment attempts by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		receiptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_receipts_total",
				Help: "Receipt dispatches by delivery method and outcome.",
			},
			[]string{"method", "outcome"},
		),
	}
}

// RecordRequestDuration records the duration of a backend operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the failed-request counter.
func (m *Metrics) IncrExternalError(operation string) {
	m.requestErrors.WithLabelValues(operation).Inc()
	m.requestsTotal.WithLabelValues("error").Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrPayment records a payment attempt outcome ("completed" or "failed")
// for a mode ("terminal" or "link").
func (m *Metrics) IncrPayment(mode, outcome string) {
	m.paymentsTotal.WithLabelValues(mode, outcome).Inc()
}

// IncrReceipt records a receipt dispatch outcome for a delivery method.
func (m *Metrics) IncrReceipt(method, outcome string) {
	m.receiptsTotal.WithLabelValues(method, outcome).Inc()
}

// Snapshot reads the current counter values for the stats command.
// Note: Prometheus counters expose cumulative values.
func (m *Metrics) Snapshot() *domain.ClientStats {
	success := getCounterValue(m.requestsTotal, "success")
	errs := getCounterValue(m.requestsTotal, "error")
	total := success + errs

	hits := getCounterValue(m.cacheHits, "health")
	misses := getCounterValue(m.cacheMisses, "health")

	errorRate := float64(0)
	if total > 0 {
		errorRate = errs / total
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.ClientStats{
		RequestsTotal:      int64(total),
		RequestErrors:      int64(errs),
		ErrorRate:          errorRate,
		PaymentsSucceeded:  int64(getCounterValue2(m.paymentsTotal, "terminal", "completed") + getCounterValue2(m.paymentsTotal, "link", "completed")),
		PaymentsFailed:     int64(getCounterValue2(m.paymentsTotal, "terminal", "failed") + getCounterValue2(m.paymentsTotal, "link", "failed")),
		ReceiptsDelivered:  int64(getCounterValue2(m.receiptsTotal, "sms", "delivered") + getCounterValue2(m.receiptsTotal, "email", "delivered") + getCounterValue2(m.receiptsTotal, "print", "delivered")),
		HealthCacheHitRate: hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func getCounterValue2(cv *prometheus.CounterVec, a, b string) float64 {
	return readCounter(cv.WithLabelValues(a, b))
}

func readCounter(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
