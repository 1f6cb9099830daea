package jurisdiction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks jurisdiction decisions and the geolocation dependency.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	Lookups       *prometheus.CounterVec
	LookupLatency prometheus.Histogram
	CacheResults  *prometheus.CounterVec
	CircuitOpen   prometheus.Gauge
}

// NewMetrics registers the metrics on reg (default registry when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_jurisdiction_decisions_total",
			Help: "Jurisdiction decisions by reason",
		}, []string{"reason"}),
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_geo_lookups_total",
			Help: "Outbound geolocation lookups by outcome (success or failure category)",
		}, []string{"outcome"}),
		LookupLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tcfgate_geo_lookup_duration_seconds",
			Help:    "Outbound geolocation lookup latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
		}),
		CacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_geo_cache_results_total",
			Help: "Geo cache reads by result (hit, miss, error)",
		}, []string{"result"}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "tcfgate_geo_circuit_open",
			Help: "1 while the geolocation circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncDecision(reason Reason) {
	if m != nil {
		m.Decisions.WithLabelValues(string(reason)).Inc()
	}
}

func (m *Metrics) ObserveLookup(outcome string, d time.Duration) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
		m.LookupLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncCache(result string) {
	if m != nil {
		m.CacheResults.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
