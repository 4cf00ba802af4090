package zipvault

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors an Archive updates around each
// public operation, mirroring the {operation, outcome} counter shape used
// elsewhere in this ecosystem for service-level instrumentation, but
// registered against a caller-supplied registry instead of the global
// default so embedding this library never fights another component for the
// default registry.
type Metrics struct {
	operations *prometheus.CounterVec
	bytes      *prometheus.HistogramVec
}

// Outcome labels recorded against the "outcome" dimension of operations.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// Operation labels recorded against the "operation" dimension.
const (
	operationExtract = "extract"
	operationAdd     = "add_entry"
	operationRemove  = "remove"
)

// NewMetrics builds a Metrics instance and registers its collectors against
// registry. Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer if the caller is certain no other component
// already owns these metric names.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zipvault_operations_total",
			Help: "Archive operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		bytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zipvault_operation_bytes",
			Help:    "Bytes transferred per archive operation.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"operation"}),
	}
	registry.MustRegister(m.operations, m.bytes)
	return m
}

func (m *Metrics) observe(operation, outcome string, byteCount int64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	if byteCount > 0 {
		m.bytes.WithLabelValues(operation).Observe(float64(byteCount))
	}
}

// WithMetrics attaches m to the archive. When never called, zero Prometheus
// code runs for the lifetime of the archive.
func WithMetrics(m *Metrics) OpenOption {
	return func(c *ArchiveConfig) {
		c.metrics = m
	}
}
