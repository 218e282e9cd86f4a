package metrics

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the const labels attached to every importer series.
type Config struct {
	ServiceName string
	Environment string
}

// Row outcomes reported per entity type.
const (
	OutcomeProcessed = "processed"
	OutcomeEmitted   = "emitted"
	OutcomePersisted = "persisted"
	OutcomeSkipped   = "skipped"
)

// NewRegistry returns the registry importer metrics are registered on. It is
// separate from the default registry so a batch run can push exactly its own
// series.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ImportMetrics captures pipeline throughput and failures.
type ImportMetrics struct {
	rows            *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	entityFailures  *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastSuccess     prometheus.Gauge
	uncategorized   prometheus.Counter
	revenueNet      *prometheus.GaugeVec
	watermarkMoment *prometheus.GaugeVec
}

func NewImportMetrics(registry *prometheus.Registry, cfg Config) *ImportMetrics {
	constLabels := constLabels(cfg)

	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "studiosync_import_rows_total",
		Help:        "Rows handled per entity type and outcome.",
		ConstLabels: constLabels,
	}, []string{"entity", "outcome"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "studiosync_import_rows_skipped_total",
		Help:        "Rows skipped per entity type by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"entity", "reason"})
	entityFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "studiosync_import_entity_failures_total",
		Help:        "Entity types rolled back by classified error reason.",
		ConstLabels: constLabels,
	}, []string{"entity", "reason"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "studiosync_import_runs_total",
		Help:        "Pipeline runs by final status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "studiosync_import_run_duration_seconds",
		Help:        "Pipeline run latency by final status.",
		Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		ConstLabels: constLabels,
	}, []string{"status"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "studiosync_import_last_success_timestamp_seconds",
		Help:        "Unix time of the last run that finished without failures.",
		ConstLabels: constLabels,
	})
	uncategorized := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "studiosync_revenue_uncategorized_orders_total",
		Help:        "Orders attributed to the Uncategorized bucket.",
		ConstLabels: constLabels,
	})
	revenueNet := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "studiosync_revenue_net",
		Help:        "Net revenue of the latest computed month per category.",
		ConstLabels: constLabels,
	}, []string{"category"})
	watermarkMoment := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "studiosync_watermark_high_water_timestamp_seconds",
		Help:        "High-water date per report type.",
		ConstLabels: constLabels,
	}, []string{"report_type"})

	registry.MustRegister(
		rows,
		skipped,
		entityFailures,
		runs,
		runDuration,
		lastSuccess,
		uncategorized,
		revenueNet,
		watermarkMoment,
	)

	return &ImportMetrics{
		rows:            rows,
		skipped:         skipped,
		entityFailures:  entityFailures,
		runs:            runs,
		runDuration:     runDuration,
		lastSuccess:     lastSuccess,
		uncategorized:   uncategorized,
		revenueNet:      revenueNet,
		watermarkMoment: watermarkMoment,
	}
}

// AddRows records count rows of entity with the given outcome.
func (m *ImportMetrics) AddRows(entity, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rows.WithLabelValues(Label(entity), outcome).Add(float64(count))
}

// AddSkipped records count rows of entity skipped for reason.
func (m *ImportMetrics) AddSkipped(entity, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.skipped.WithLabelValues(Label(entity), Label(reason)).Add(float64(count))
}

func (m *ImportMetrics) IncEntityFailure(entity, reason string) {
	if m == nil {
		return
	}
	m.entityFailures.WithLabelValues(Label(entity), Label(reason)).Inc()
}

// ObserveRun records a finished run.
func (m *ImportMetrics) ObserveRun(status string, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "succeeded" {
		m.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

func (m *ImportMetrics) AddUncategorized(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.uncategorized.Add(float64(count))
}

// SetRevenueNet publishes a category's net revenue.
func (m *ImportMetrics) SetRevenueNet(category string, net float64) {
	if m == nil {
		return
	}
	m.revenueNet.WithLabelValues(Label(category)).Set(net)
}

func (m *ImportMetrics) SetHighWater(reportType string, at time.Time) {
	if m == nil || at.IsZero() {
		return
	}
	m.watermarkMoment.WithLabelValues(Label(reportType)).Set(float64(at.Unix()))
}

// Label turns free text into a bounded snake_case label value.
func Label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(slug.Make(value), "-", "_")
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "studiosync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
