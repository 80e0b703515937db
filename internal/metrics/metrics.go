// Package metrics exposes Prometheus metrics for request execution and the
// async worker pool.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhle/ews-client/internal/async"
)

const namespace = "ews"

// OutcomeSuccess labels calls that returned without error. Failed calls are
// labeled with their failure kind.
const OutcomeSuccess = "success"

// Metrics records request outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	reg      prometheus.Registerer
}

// New creates the request metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Count of executed requests by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from building a request until its response was read.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 100},
			},
			[]string{"operation"},
		),
		reg: reg,
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRequest records one completed call.
func (m *Metrics) ObserveRequest(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RegisterPool exposes the pool's worker and queue sizes as gauges.
func (m *Metrics) RegisterPool(p *async.Pool) error {
	if m == nil {
		return nil
	}

	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Number of live async workers.",
		}, func() float64 { return float64(p.Stats().Workers) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "busy_workers",
			Help:      "Number of async workers running a task.",
		}, func() float64 { return float64(p.Stats().Busy) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queued_tasks",
			Help:      "Number of async tasks waiting for a worker.",
		}, func() float64 { return float64(p.Stats().Queued) }),
	}
	for _, g := range gauges {
		if err := m.reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
