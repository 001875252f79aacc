package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// sap-flow pipeline.
type Metrics struct {
	ReadingsConsumed   prometheus.Counter
	ReadingsAggregated prometheus.Counter
	InvalidDateRows    prometheus.Counter
	OutsideWindowRows  prometheus.Counter
	TransformErrors    prometheus.Counter
	SnapshotsPublished prometheus.Counter
	PipelineRunning    prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	AggregationDuration     prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ReadingsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sapflow_etl",
			Name:      "readings_consumed_total",
			Help:      "Total raw reading rows read from the source topic.",
		}),
		ReadingsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sapflow_etl",
			Name:      "readings_aggregated_total",
			Help:      "Total normalized readings accepted into the aggregation state.",
		}),
		InvalidDateRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sapflow_etl",
			Name:      "invalid_date_rows_total",
			Help:      "Rows dropped because DIAJ does not resolve to a date in ANO.",
		}),
		OutsideWindowRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sapflow_etl",
			Name:      "outside_window_rows_total",
			Help:      "Rows excluded by the active time window.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sapflow_etl",
			Name:      "transform_errors_total",
			Help:      "Rows skipped because the raw payload could not be parsed.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sapflow_etl",
			Name:      "snapshots_published_total",
			Help:      "Aggregate snapshots written to the sink topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sapflow_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sapflow_etl",
			Name:      "batch_size",
			Help:      "Number of rows per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sapflow_etl",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of one full re-aggregation at flush time.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sapflow_etl",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-transform-accumulate cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.ReadingsConsumed,
		m.ReadingsAggregated,
		m.InvalidDateRows,
		m.OutsideWindowRows,
		m.TransformErrors,
		m.SnapshotsPublished,
		m.PipelineRunning,
		m.BatchSize,
		m.AggregationDuration,
		m.BatchProcessingDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ReadingsConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sapflow_etl", Name: "readings_consumed_total"}),
		ReadingsAggregated:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sapflow_etl", Name: "readings_aggregated_total"}),
		InvalidDateRows:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sapflow_etl", Name: "invalid_date_rows_total"}),
		OutsideWindowRows:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sapflow_etl", Name: "outside_window_rows_total"}),
		TransformErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sapflow_etl", Name: "transform_errors_total"}),
		SnapshotsPublished:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sapflow_etl", Name: "snapshots_published_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sapflow_etl", Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sapflow_etl", Name: "batch_size"}),
		AggregationDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sapflow_etl", Name: "aggregation_duration_seconds"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sapflow_etl", Name: "batch_processing_duration_seconds"}),
	}
}
