// Package metrics exposes prometheus instruments for oracle calls and artifact computation.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goglm/domain/dataset"
	"goglm/ports"
)

// Registry holds all goglm metrics on a dedicated prometheus registry
type Registry struct {
	registry *prometheus.Registry

	PredictCalls    *prometheus.CounterVec
	PredictedRows   *prometheus.CounterVec
	PredictErrors   *prometheus.CounterVec
	PredictDuration *prometheus.HistogramVec

	ArtifactDuration *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
}

// NewRegistry creates and registers every instrument
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		PredictCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goglm_oracle_predict_calls_total",
				Help: "Number of batched predict calls by model",
			},
			[]string{"model"},
		),
		PredictedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goglm_oracle_predicted_rows_total",
				Help: "Number of rows scored by model",
			},
			[]string{"model"},
		),
		PredictErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goglm_oracle_predict_errors_total",
				Help: "Number of failed predict calls by model",
			},
			[]string{"model"},
		),
		PredictDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goglm_oracle_predict_duration_seconds",
				Help:    "Duration of batched predict calls in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"model"},
		),
		ArtifactDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goglm_artifact_compute_duration_seconds",
				Help:    "Duration of artifact computations in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"artifact"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goglm_cache_hits_total",
				Help: "Artifact cache hits by artifact and tier",
			},
			[]string{"artifact", "tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goglm_cache_misses_total",
				Help: "Artifact cache misses by artifact",
			},
			[]string{"artifact"},
		),
	}

	r.registry.MustRegister(
		r.PredictCalls, r.PredictedRows, r.PredictErrors, r.PredictDuration,
		r.ArtifactDuration, r.CacheHits, r.CacheMisses,
	)
	return r
}

// Gatherer exposes the underlying registry for scraping and tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// CacheHit implements cache.Observer
func (r *Registry) CacheHit(artifact, tier string) {
	r.CacheHits.WithLabelValues(artifact, tier).Inc()
}

// CacheMiss implements cache.Observer
func (r *Registry) CacheMiss(artifact string) {
	r.CacheMisses.WithLabelValues(artifact).Inc()
}

// ObserveCompute implements cache.Observer
func (r *Registry) ObserveCompute(artifact string, elapsed time.Duration) {
	r.ArtifactDuration.WithLabelValues(artifact).Observe(elapsed.Seconds())
}

// InstrumentedModel counts the predict traffic of a wrapped model
type InstrumentedModel struct {
	ports.FittedModel
	metrics *Registry
}

// Instrument wraps model so every Predict call is recorded
func Instrument(model ports.FittedModel, r *Registry) *InstrumentedModel {
	return &InstrumentedModel{FittedModel: model, metrics: r}
}

// Predict delegates to the wrapped model
func (m *InstrumentedModel) Predict(ctx context.Context, rows []dataset.Row) ([]float64, error) {
	label := m.ID().String()
	start := time.Now()
	preds, err := m.FittedModel.Predict(ctx, rows)
	m.metrics.PredictDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	m.metrics.PredictCalls.WithLabelValues(label).Inc()
	if err != nil {
		m.metrics.PredictErrors.WithLabelValues(label).Inc()
		return nil, err
	}
	m.metrics.PredictedRows.WithLabelValues(label).Add(float64(len(rows)))
	return preds, nil
}
