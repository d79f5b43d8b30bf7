package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the optimizer service.
type Metrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationFailures *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	generationsTotal   *prometheus.CounterVec
	bestFitness        *prometheus.GaugeVec
	paretoFrontSize    *prometheus.GaugeVec
	runsActive         prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimizer_evaluations_total",
				Help: "Total number of evaluator calls",
			},
			[]string{"algorithm"},
		),
		evaluationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimizer_evaluation_failures_total",
				Help: "Evaluator calls that returned an error",
			},
			[]string{"algorithm"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optimizer_evaluation_duration_seconds",
				Help:    "Evaluator call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"algorithm"},
		),
		generationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimizer_generations_total",
				Help: "Completed generations per algorithm",
			},
			[]string{"algorithm"},
		),
		bestFitness: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimizer_best_fitness",
				Help: "Best-ever fitness seen per algorithm",
			},
			[]string{"algorithm"},
		),
		paretoFrontSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimizer_pareto_front_size",
				Help: "Size of the current rank-0 front",
			},
			[]string{"algorithm"},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optimizer_runs_active",
				Help: "Optimization runs currently executing",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.evaluationsTotal,
		m.evaluationFailures,
		m.evaluationDuration,
		m.generationsTotal,
		m.bestFitness,
		m.paretoFrontSize,
		m.runsActive,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvaluation implements the optimizer's metrics sink.
func (m *Metrics) RecordEvaluation(algorithm string, seconds float64, failed bool) {
	m.evaluationsTotal.WithLabelValues(algorithm).Inc()
	m.evaluationDuration.WithLabelValues(algorithm).Observe(seconds)
	if failed {
		m.evaluationFailures.WithLabelValues(algorithm).Inc()
	}
}

// RecordGeneration counts a completed generation and tracks the best
// fitness so far.
func (m *Metrics) RecordGeneration(algorithm string, bestFitness float64) {
	m.generationsTotal.WithLabelValues(algorithm).Inc()
	m.bestFitness.WithLabelValues(algorithm).Set(bestFitness)
}

// RecordFrontSize tracks the current Pareto front size.
func (m *Metrics) RecordFrontSize(algorithm string, size int) {
	m.paretoFrontSize.WithLabelValues(algorithm).Set(float64(size))
}

// RunStarted increments the active-runs gauge.
func (m *Metrics) RunStarted() {
	m.runsActive.Inc()
}

// RunFinished decrements the active-runs gauge.
func (m *Metrics) RunFinished() {
	m.runsActive.Dec()
}
