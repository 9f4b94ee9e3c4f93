package cart

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Events *prometheus.CounterVec
	Lines  prometheus.Gauge
	Units  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_events_total",
				Help: "Accepted cart mutations by kind",
			},
			[]string{"kind"},
		),
		Lines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_line_items",
			Help: "Distinct lines currently in the cart",
		}),
		Units: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_units",
			Help: "Units currently in the cart",
		}),
	}

	reg.MustRegister(m.Events, m.Lines, m.Units)
	return m
}

// Attach keeps the gauges in step with s and counts its events.
func (m *Metrics) Attach(s *Store) (detach func()) {
	m.observe(s)
	return s.Subscribe(func(ev Event) {
		m.Events.WithLabelValues(string(ev.Kind)).Inc()
		m.observe(s)
	})
}

func (m *Metrics) observe(s *Store) {
	m.Lines.Set(float64(s.Len()))
	m.Units.Set(float64(s.TotalQuantity()))
}
