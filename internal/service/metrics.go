package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the queue collectors. A nil *Metrics records nothing.
type Metrics struct {
	enrollTotal       *prometheus.CounterVec
	enrollRetries     prometheus.Counter
	enrollDuration    prometheus.Histogram
	statusTransitions *prometheus.CounterVec
	cacheRequests     *prometheus.CounterVec
}

// NewMetrics registers the queue collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		enrollTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "powerline",
			Name:      "enroll_total",
			Help:      "Total number of enrollment attempts by result.",
		}, []string{"result"}),
		enrollRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "powerline",
			Name:      "enroll_retries_total",
			Help:      "Enrollment retries caused by a concurrently claimed position number.",
		}),
		enrollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "powerline",
			Name:      "enroll_duration_seconds",
			Help:      "Latency distribution for enrollment including retries.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05,
				0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		}),
		statusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "powerline",
			Name:      "status_transitions_total",
			Help:      "Position status transitions by target status.",
		}, []string{"status"}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "powerline",
			Name:      "cache_requests_total",
			Help:      "Queue cache lookups by result (hit/miss).",
		}, []string{"result"}),
	}
}

func enrollResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrDuplicateUserPosition):
		return "duplicate_user"
	case errors.Is(err, ErrInvalidSponsor), errors.Is(err, ErrInvalidInput):
		return "rejected"
	case errors.Is(err, ErrQueueContention):
		return "contention"
	default:
		return "error"
	}
}

func (m *Metrics) observeEnroll(err error, took time.Duration) {
	if m == nil {
		return
	}
	m.enrollTotal.WithLabelValues(enrollResult(err)).Inc()
	m.enrollDuration.Observe(took.Seconds())
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.enrollRetries.Inc()
}

func (m *Metrics) transition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}
