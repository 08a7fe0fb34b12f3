package websocket

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects handshake counters. A nil *Metrics records nothing.
type Metrics struct {
	outcomes  *prometheus.CounterVec
	pending   *prometheus.GaugeVec
	evictions *prometheus.CounterVec
}

// NewMetrics creates the handshake collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websocket",
			Subsystem: "handshake",
			Name:      "outcomes_total",
			Help:      "Handshake attempts by role and outcome.",
		}, []string{"role", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "websocket",
			Subsystem: "handshake",
			Name:      "pending",
			Help:      "Handshakes waiting for a readiness notification.",
		}, []string{"role"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websocket",
			Subsystem: "handshake",
			Name:      "evictions_total",
			Help:      "Pending handshakes dropped without completing, by reason.",
		}, []string{"role", "reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.outcomes, m.pending, m.evictions)
	}

	return m
}

func (m *Metrics) observe(role string, o Outcome) {
	if m == nil {
		return
	}

	m.outcomes.WithLabelValues(role, o.String()).Inc()
}

func (m *Metrics) setPending(role string, n int) {
	if m == nil {
		return
	}

	m.pending.WithLabelValues(role).Set(float64(n))
}

func (m *Metrics) evicted(role, reason string) {
	if m == nil {
		return
	}

	m.evictions.WithLabelValues(role, reason).Inc()
}
