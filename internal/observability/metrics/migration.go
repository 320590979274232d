package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics tracks stage progress, row failures and remote lookups.
// All Record methods are safe on a nil receiver so callers can run without metrics.
type MigrationMetrics struct {
	registry *prometheus.Registry

	rowsProcessed   *prometheus.CounterVec
	rowErrors       *prometheus.CounterVec
	chunkDuration   *prometheus.HistogramVec
	remoteRequests  *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	indexInterests  *prometheus.GaugeVec
	stageProgress   *prometheus.GaugeVec
	reconciledTotal prometheus.Counter

	collectors []prometheus.Collector
}

// NewMigrationMetrics creates and registers migration metrics
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.rowsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcmigrate_rows_processed_total",
			Help: "Legacy rows processed per stage",
		},
		[]string{"stage", "result"}, // result: migrated, skipped, failed
	)

	m.rowErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcmigrate_row_errors_total",
			Help: "Row and stage errors by error category",
		},
		[]string{"stage", "category"},
	)

	m.chunkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcmigrate_chunk_duration_seconds",
			Help:    "Time taken to migrate one chunk",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"stage"},
	)

	m.remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcmigrate_remote_requests_total",
			Help: "MailChimp API requests by endpoint and HTTP status",
		},
		[]string{"endpoint", "status"},
	)

	m.remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcmigrate_remote_request_duration_seconds",
			Help:    "MailChimp API request latency",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"endpoint"},
	)

	m.indexInterests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcmigrate_index_interests",
			Help: "Interests loaded into the remote interest index",
		},
		[]string{"stage"},
	)

	m.stageProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcmigrate_stage_progress_ratio",
			Help: "Fraction of legacy rows processed per stage",
		},
		[]string{"stage"},
	)

	m.reconciledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcmigrate_reconciled_total",
			Help: "Unselected interests inserted after a stage completed",
		},
	)

	m.collectors = []prometheus.Collector{
		m.rowsProcessed,
		m.rowErrors,
		m.chunkDuration,
		m.remoteRequests,
		m.remoteDuration,
		m.indexInterests,
		m.stageProgress,
		m.reconciledTotal,
	}
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRow counts one processed row.
func (m *MigrationMetrics) RecordRow(stage, result string) {
	if m == nil {
		return
	}
	m.rowsProcessed.WithLabelValues(stage, result).Inc()
}

// RecordRowError counts one logged error.
func (m *MigrationMetrics) RecordRowError(stage, category string) {
	if m == nil {
		return
	}
	m.rowErrors.WithLabelValues(stage, category).Inc()
}

// ObserveChunk records the duration of one chunk.
func (m *MigrationMetrics) ObserveChunk(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.chunkDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordRemoteRequest records a MailChimp request.
func (m *MigrationMetrics) RecordRemoteRequest(endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(endpoint, status).Inc()
	m.remoteDuration.WithLabelValues(endpoint).Observe(seconds)
}

// SetIndexInterests sets the number of interests held by a stage's index.
func (m *MigrationMetrics) SetIndexInterests(stage string, n int) {
	if m == nil {
		return
	}
	m.indexInterests.WithLabelValues(stage).Set(float64(n))
}

// SetStageProgress sets processed/total for a stage. A zero total reports 1.
func (m *MigrationMetrics) SetStageProgress(stage string, processed, total int64) {
	if m == nil {
		return
	}
	ratio := 1.0
	if total > 0 {
		ratio = float64(processed) / float64(total)
	}
	m.stageProgress.WithLabelValues(stage).Set(ratio)
}

// RecordReconciled adds n reconciled interests.
func (m *MigrationMetrics) RecordReconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciledTotal.Add(float64(n))
}
