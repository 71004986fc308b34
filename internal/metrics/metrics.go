// Package metrics exposes Prometheus metrics for the verification
// engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all verification metrics.
type Metrics struct {
	verificationsTotal   *prometheus.CounterVec
	verificationDuration prometheus.Histogram
	bytesHashed          prometheus.Counter
	decryptionsTotal     *prometheus.CounterVec
	quickChecksTotal     *prometheus.CounterVec
	batchSize            prometheus.Histogram
}

// New creates a metrics instance on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a metrics instance with a custom registry
// (for testing).
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backup_verifications_total",
				Help: "Total number of backup verification attempts",
			},
			[]string{"result"},
		),
		verificationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backup_verification_duration_seconds",
				Help:    "Duration of a single backup verification",
				Buckets: prometheus.DefBuckets,
			},
		),
		bytesHashed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backup_verification_bytes_hashed_total",
				Help: "Total bytes hashed during verification",
			},
		),
		decryptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backup_decryptions_total",
				Help: "Total number of artifact decryptions during verification",
			},
			[]string{"result"},
		),
		quickChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backup_quick_checks_total",
				Help: "Total number of quick integrity probes",
			},
			[]string{"result"},
		),
		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backup_verification_batch_size",
				Help:    "Number of artifacts processed per verify-all pass",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
	}
}

// RecordVerification records the outcome and duration of one
// verification attempt.
func (m *Metrics) RecordVerification(result string, duration time.Duration) {
	m.verificationsTotal.WithLabelValues(result).Inc()
	m.verificationDuration.Observe(duration.Seconds())
}

// RecordBytesHashed adds to the hashed-bytes counter.
func (m *Metrics) RecordBytesHashed(n int64) {
	m.bytesHashed.Add(float64(n))
}

// RecordDecryption records the outcome of one decryption.
func (m *Metrics) RecordDecryption(result string) {
	m.decryptionsTotal.WithLabelValues(result).Inc()
}

// RecordQuickCheck records the outcome of one quick check.
func (m *Metrics) RecordQuickCheck(result string) {
	m.quickChecksTotal.WithLabelValues(result).Inc()
}

// RecordBatch records the size of a verify-all pass.
func (m *Metrics) RecordBatch(size int) {
	m.batchSize.Observe(float64(size))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
