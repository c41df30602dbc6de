package authflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sign-in attempts by outcome and times them.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudauth",
			Subsystem: "signin",
			Name:      "attempts_total",
			Help:      "Interactive sign-in attempts by outcome phase.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cloudauth",
			Subsystem: "signin",
			Name:      "duration_seconds",
			Help:      "Wall time of interactive sign-in attempts.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudauth",
			Subsystem: "signin",
			Name:      "in_flight",
			Help:      "Sign-in attempts currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.duration, m.inFlight)
	}
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finished(outcome Phase, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.attempts.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}
