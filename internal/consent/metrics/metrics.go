package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the consent module.
type Metrics struct {
	// Validation outcomes; invalid submissions count once per error code
	ValidationOutcome *prometheus.CounterVec

	// Token operations by operation (encode, decode) and result
	TokenOperations *prometheus.CounterVec

	// Encode/decode latency
	CodecLatency *prometheus.HistogramVec

	// Vendor section encodings chosen on generate
	VendorEncoding *prometheus.CounterVec
}

// New creates the consent metrics on reg (default registry when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ValidationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_consent_validation_outcomes_total",
			Help: "Consent validations by result code (valid or the failing rule)",
		}, []string{"code"}),

		TokenOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_consent_token_operations_total",
			Help: "Consent string encodes and decodes by result",
		}, []string{"operation", "result"}),

		CodecLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcfgate_consent_codec_duration_seconds",
			Help:    "Duration of consent string encode and decode",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}, []string{"operation"}),

		VendorEncoding: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcfgate_consent_vendor_encoding_total",
			Help: "Vendor sections written by encoding (bitfield or range)",
		}, []string{"section", "encoding"}),
	}
}

// IncrementValidation records one validation result code.
func (m *Metrics) IncrementValidation(code string) {
	if m != nil {
		m.ValidationOutcome.WithLabelValues(code).Inc()
	}
}

// ObserveCodec records a codec call and its result.
func (m *Metrics) ObserveCodec(operation, result string, d time.Duration) {
	if m != nil {
		m.TokenOperations.WithLabelValues(operation, result).Inc()
		m.CodecLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncrementVendorEncoding records the representation chosen for a section.
func (m *Metrics) IncrementVendorEncoding(section, encoding string) {
	if m != nil {
		m.VendorEncoding.WithLabelValues(section, encoding).Inc()
	}
}
