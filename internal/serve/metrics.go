package serve

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors exposed on the side HTTP
// listener (§4.9). They are never served on the TCP prediction
// socket itself.
type Metrics struct {
	PredictionsTotal prometheus.Counter
	ParseErrorsTotal prometheus.Counter
	ConnectionsTotal prometheus.Counter
	PredictSeconds   prometheus.Histogram

	collectors []prometheus.Collector
	registerer prometheus.Registerer
}

// NewMetrics registers the daemon's counters/histogram with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	predictionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wabbitlearn_predictions_total",
		Help: "Total number of predictions served.",
	})
	parseErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wabbitlearn_parse_errors_total",
		Help: "Total number of request lines rejected by the parser.",
	})
	connectionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wabbitlearn_connections_total",
		Help: "Total number of accepted TCP connections.",
	})
	predictSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wabbitlearn_predict_seconds",
		Help:    "Latency of a single predict-and-respond round trip.",
		Buckets: prometheus.DefBuckets,
	})

	collectors := []prometheus.Collector{predictionsTotal, parseErrorsTotal, connectionsTotal, predictSeconds}
	reg.MustRegister(collectors...)

	return &Metrics{
		PredictionsTotal: predictionsTotal,
		ParseErrorsTotal: parseErrorsTotal,
		ConnectionsTotal: connectionsTotal,
		PredictSeconds:   predictSeconds,
		collectors:       collectors,
		registerer:       reg,
	}
}

// Unregister removes the daemon's collectors from the registerer they
// were added to, so another Server can register against it again.
func (m *Metrics) Unregister() {
	if m.registerer == nil {
		return
	}
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}
