package mail

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts mail traffic. It is passed to the Service at construction
// instead of living in a package global.
type Metrics struct {
	sent    atomic.Uint64
	expired *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
// A nil reg keeps them unregistered (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ucs",
			Subsystem: "mail",
			Name:      "expired_total",
			Help:      "Messages removed by the retention rules.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "ucs",
				Subsystem: "mail",
				Name:      "sent_total",
				Help:      "Messages delivered to a mailbox.",
			}, func() float64 { return float64(m.sent.Load()) }),
			m.expired,
		)
	}
	return m
}

// MailSent returns the number of messages sent since start.
func (m *Metrics) MailSent() uint64 { return m.sent.Load() }

func (m *Metrics) incSent() { m.sent.Add(1) }

func (m *Metrics) addExpired(status string, n int64) {
	if n > 0 {
		m.expired.WithLabelValues(status).Add(float64(n))
	}
}
