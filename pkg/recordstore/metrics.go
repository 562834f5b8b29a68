package recordstore

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Read result labels.
const (
	readOK           = "ok"
	readDefault      = "default"
	readCorruptReset = "corrupt_reset"
	readError        = "error"
)

// Metrics holds Prometheus metrics for record stores. All stores in a
// process share one registration, labeled by document base name.
type Metrics struct {
	ReadsTotal         *prometheus.CounterVec
	WritesTotal        *prometheus.CounterVec
	AppendsTotal       *prometheus.CounterVec
	CorruptResetsTotal *prometheus.CounterVec
	LockWaitSeconds    *prometheus.HistogramVec
	DocumentBytes      *prometheus.GaugeVec
}

// NewMetrics creates and registers the store metrics.
//
// Uses sync.Once so repeated Open calls never trip the "duplicate metrics
// collector registration" panic. All metrics are prefixed "recordstore_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ReadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recordstore_reads_total",
					Help: "Total document reads by outcome",
				},
				[]string{"store", "result"},
			),

			WritesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recordstore_writes_total",
					Help: "Total whole-document writes",
				},
				[]string{"store"},
			),

			AppendsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recordstore_appends_total",
					Help: "Total records appended",
				},
				[]string{"store"},
			),

			CorruptResetsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recordstore_corrupt_resets_total",
					Help: "Total corrupt documents reset to the default",
				},
				[]string{"store"},
			),

			LockWaitSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recordstore_lock_wait_seconds",
					Help:    "Advisory lock acquisition wait time",
					Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
				},
				[]string{"store", "mode"},
			),

			DocumentBytes: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "recordstore_document_bytes",
					Help: "Size of the last written document",
				},
				[]string{"store"},
			),
		}
	})

	return globalMetrics
}

// RecordRead counts one read with its outcome.
func (m *Metrics) RecordRead(store, result string) {
	m.ReadsTotal.WithLabelValues(store, result).Inc()
	if result == readCorruptReset {
		m.CorruptResetsTotal.WithLabelValues(store).Inc()
	}
}

// RecordWrite counts one whole-document write and tracks its size.
func (m *Metrics) RecordWrite(store string, bytes int) {
	m.WritesTotal.WithLabelValues(store).Inc()
	m.DocumentBytes.WithLabelValues(store).Set(float64(bytes))
}

// RecordAppend counts one appended record.
func (m *Metrics) RecordAppend(store string) {
	m.AppendsTotal.WithLabelValues(store).Inc()
}

// ObserveLockWait records how long a lock acquisition waited.
func (m *Metrics) ObserveLockWait(store, mode string, wait time.Duration) {
	m.LockWaitSeconds.WithLabelValues(store, mode).Observe(wait.Seconds())
}
