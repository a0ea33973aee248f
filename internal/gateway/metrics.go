package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments gateway operations. A nil *Metrics records nothing.
type Metrics struct {
	upserted  prometheus.Counter
	retrieved *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		upserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewrag",
			Subsystem: "gateway",
			Name:      "documents_upserted_total",
			Help:      "Distinct documents written to the vector store.",
		}),
		retrieved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewrag",
			Subsystem: "gateway",
			Name:      "retrievals_total",
			Help:      "Retrieve calls by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewrag",
			Subsystem: "gateway",
			Name:      "operation_duration_seconds",
			Help:      "Latency of gateway operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(op string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) addUpserted(n int) {
	if m == nil {
		return
	}
	m.upserted.Add(float64(n))
}

func (m *Metrics) retrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrieved.WithLabelValues(outcome).Inc()
}
