// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Scoring metrics
	PredictionsTotal        prometheus.Counter
	PredictionsSuccessTotal prometheus.Counter
	AnomaliesDetectedTotal  prometheus.Counter
	SignalAnomaliesTotal    *prometheus.CounterVec
	PredictionDuration      prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	RecordsIngestedTotal  prometheus.Counter
	RecordsProcessedTotal prometheus.Counter
	StageErrorsTotal      *prometheus.CounterVec
	AlertsGeneratedTotal  prometheus.Counter
	RowsSunkTotal         prometheus.Counter

	// Health metrics
	LastSuccessfulTraining prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg. A nil
// registerer falls back to the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "streamsense"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	return &Metrics{
		gatherer: gatherer,
		// Scoring metrics
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "predictions_total",
			Help:      "Total number of prediction requests",
		}),
		PredictionsSuccessTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "predictions_success_total",
			Help:      "Total number of successful predictions",
		}),
		AnomaliesDetectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "anomalies_detected_total",
			Help:      "Total number of readings flagged anomalous",
		}),
		SignalAnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "signal_anomalies_total",
			Help:      "Total number of per-signal anomalies detected",
		}, []string{"signal"}),
		PredictionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ml",
			Name:      "prediction_duration_seconds",
			Help:      "Prediction latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		// Pipeline metrics
		RecordsIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_ingested_total",
			Help:      "Total number of raw messages consumed",
		}),
		RecordsProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_processed_total",
			Help:      "Total number of records that completed all stages",
		}),
		StageErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Total number of records routed to the error channel by stage",
		}, []string{"stage"}),
		AlertsGeneratedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "alerts_generated_total",
			Help:      "Total number of anomaly alerts generated",
		}),
		RowsSunkTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_sunk_total",
			Help:      "Total number of rows written to the warehouse sink",
		}),

		// Health metrics
		LastSuccessfulTraining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_training_timestamp",
			Help:      "Unix timestamp of last successful training run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Handler returns a /metrics handler for the registry these metrics
// live on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// HandlerFor returns a /metrics handler scoped to the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
