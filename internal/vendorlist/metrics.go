package vendorlist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registry fetches and what the cache serves.
type Metrics struct {
	Fetches         *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	SnapshotVersion prometheus.Gauge
	SnapshotVendors prometheus.Gauge
	Served          *prometheus.CounterVec
}

// NewMetrics registers the vendor-list metrics with reg (default registry
// when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_vendorlist_fetches_total",
			Help: "Registry fetch attempts by outcome (success or failure category)",
		}, []string{"outcome"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tcfgate_vendorlist_fetch_duration_seconds",
			Help:    "Registry fetch latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		SnapshotVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "tcfgate_vendorlist_snapshot_version",
			Help: "vendorListVersion of the snapshot currently served",
		}),
		SnapshotVendors: f.NewGauge(prometheus.GaugeOpts{
			Name: "tcfgate_vendorlist_snapshot_vendors",
			Help: "Vendors in the snapshot currently served",
		}),
		Served: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_vendorlist_served_total",
			Help: "Snapshot reads by freshness (fresh, stale, empty)",
		}, []string{"freshness"}),
	}
}

func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) SetSnapshot(s *Snapshot) {
	if m == nil || s == nil {
		return
	}
	m.SnapshotVersion.Set(float64(s.Version))
	m.SnapshotVendors.Set(float64(len(s.Vendors)))
}

func (m *Metrics) IncServed(freshness string) {
	if m == nil {
		return
	}
	m.Served.WithLabelValues(freshness).Inc()
}
