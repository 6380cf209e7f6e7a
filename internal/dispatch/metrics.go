package dispatch

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for dispatch cycles.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryDuration   *prometheus.HistogramVec
	ItemsTotal         *prometheus.CounterVec
	ItemErrorsTotal    *prometheus.CounterVec
	PredictorFallbacks prometheus.Counter
}

// NewMetrics registers and returns dispatch metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expirywatch_cycles_total",
			Help: "Dispatch cycles by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "expirywatch_cycle_duration_seconds",
			Help:    "Duration of dispatch cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expirywatch_deliveries_total",
			Help: "Delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expirywatch_delivery_duration_seconds",
			Help:    "Duration of single delivery attempts in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"channel"}),
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expirywatch_items_total",
			Help: "Classified items by tier.",
		}, []string{"tier"}),
		ItemErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expirywatch_item_errors_total",
			Help: "Items that could not be dispatched, by error kind.",
		}, []string{"kind"}),
		PredictorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expirywatch_predictor_fallbacks_total",
			Help: "Classifications that fell back to rule-only scoring after a predictor failure.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.ItemsTotal,
		m.ItemErrorsTotal,
		m.PredictorFallbacks,
	)
	return m
}

func (m *Metrics) delivery(ch, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(ch, outcome).Inc()
	if seconds >= 0 {
		m.DeliveryDuration.WithLabelValues(ch).Observe(seconds)
	}
}

func (m *Metrics) item(tier string) {
	if m != nil {
		m.ItemsTotal.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) itemError(kind string) {
	if m != nil {
		m.ItemErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) fallback() {
	if m != nil {
		m.PredictorFallbacks.Inc()
	}
}

func (m *Metrics) cycle(result string, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(seconds)
}
