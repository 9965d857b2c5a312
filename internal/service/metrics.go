package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the lesson level prometheus collectors.
type Metrics struct {
	checks      *prometheus.CounterVec
	decodeDelay prometheus.Histogram
}

// NewMetrics creates and registers the lesson collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lesson_checks_total",
				Help: "Total number of lesson tokens checked, by outcome.",
			},
			[]string{"assignment", "outcome"},
		),
		decodeDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lesson_decode_delay_seconds",
			Help:    "Time spent decoding task holders.",
			Buckets: []float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 10, 15, 30, 60},
		}),
	}

	for _, c := range []prometheus.Collector{m.checks, m.decodeDelay} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(v Verdict) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(AssignmentName, string(v.Outcome)).Inc()
	if v.Timed {
		m.decodeDelay.Observe(v.Delay.Seconds())
	}
}
