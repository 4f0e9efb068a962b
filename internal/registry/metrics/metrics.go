// Package metrics holds the Prometheus instruments for the registry and its
// event outbox.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks committed and rejected transitions, escrow flows, the
// property cache and the outbox relay.
type Metrics struct {
	TransitionsCommitted *prometheus.CounterVec
	TransitionsRejected  *prometheus.CounterVec
	EscrowAmount         *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	CacheLookups         *prometheus.CounterVec
	CacheWriteFailures   *prometheus.CounterVec
	OutboxPublished      prometheus.Counter
	OutboxFailures       *prometheus.CounterVec
	OutboxLag            prometheus.Gauge
}

// New registers the registry metrics with reg. Pass
// prometheus.DefaultRegisterer in the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_transitions_committed_total",
			Help: "Committed ledger transitions by event type",
		}, []string{"event"}),
		TransitionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_transitions_rejected_total",
			Help: "Rejected operations by operation and error code",
		}, []string{"operation", "code"}),
		EscrowAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_escrow_amount_total",
			Help: "Smallest currency units moved through escrow by direction and kind (sale or rent)",
		}, []string{"direction", "kind"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "land_registry_operation_duration_seconds",
			Help:    "Duration of state machine operations including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_property_cache_lookups_total",
			Help: "Property cache lookups by result",
		}, []string{"result"}),
		CacheWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_property_cache_write_failures_total",
			Help: "Post-commit cache writes that failed, by operation (put or delete)",
		}, []string{"operation"}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "land_registry_outbox_events_published_total",
			Help: "Events delivered to every sink and marked published",
		}),
		OutboxFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_outbox_publish_failures_total",
			Help: "Failed sink deliveries by sink",
		}, []string{"sink"}),
		OutboxLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "land_registry_outbox_pending_events",
			Help: "Unpublished events seen by the last relay poll",
		}),
	}
}

func (m *Metrics) IncrementCommitted(event string) {
	m.TransitionsCommitted.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementRejected(operation, code string) {
	m.TransitionsRejected.WithLabelValues(operation, code).Inc()
}

// AddEscrow records an amount deposited, released or refunded for a sale
// or a lease.
func (m *Metrics) AddEscrow(direction, kind string, amount uint64) {
	m.EscrowAmount.WithLabelValues(direction, kind).Add(float64(amount))
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementCacheWriteFailure(operation string) {
	m.CacheWriteFailures.WithLabelValues(operation).Inc()
}
