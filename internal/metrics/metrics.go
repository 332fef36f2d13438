// Package metrics provides Prometheus metrics for the risk engine. It
// covers scoring traffic, model lifecycle and training runs, all exposed
// via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the engine. Scoring metrics are
// labeled by model family.
type Metrics struct {
	// Scoring metrics
	Predictions   *prometheus.CounterVec   // Scoring requests answered, by family
	Failures      *prometheus.CounterVec   // Scoring failures, by family and kind
	Latency       *prometheus.HistogramVec // End-to-end scoring latency
	Probabilities *prometheus.HistogramVec // Distribution of ensemble probabilities
	Tiers         *prometheus.CounterVec   // Assessments per risk tier

	// Model lifecycle
	ModelAge   *prometheus.GaugeVec   // Age of the served artifact in seconds
	Reloads    *prometheus.CounterVec // Artifact reloads, by result
	ScoreDrift *prometheus.GaugeVec   // PSI of served scores against the training baseline

	// Training
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration *prometheus.HistogramVec

	// API
	HTTPRequests  *prometheus.CounterVec
	StreamClients prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_predictions_total",
			Help: "Total number of scoring requests answered",
		}, []string{"family"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_failures_total",
			Help: "Total number of scoring failures",
		}, []string{"family", "kind"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_latency_seconds",
			Help:    "Scoring latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"family"}),
		Probabilities: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_probability",
			Help:    "Distribution of ensemble probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"family"}),
		Tiers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_tier_total",
			Help: "Total number of assessments per risk tier",
		}, []string{"family", "tier"}),
		ModelAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_model_age_seconds",
			Help: "Age of the served model artifact in seconds",
		}, []string{"family"}),
		Reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_model_reloads_total",
			Help: "Total number of artifact reload attempts",
		}, []string{"family", "result"}),
		ScoreDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_score_drift_psi",
			Help: "Population stability index of recent scores against the training baseline",
		}, []string{"family"}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_training_runs_total",
			Help: "Total number of training runs",
		}, []string{"family", "result"}),
		TrainingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"family"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_http_requests_total",
			Help: "Total number of API requests",
		}, []string{"route", "code"}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_stream_clients",
			Help: "Number of connected streaming clients",
		}),
	}
}
