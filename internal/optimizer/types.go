package optimizer

import (
	"context"
)

// Individual is one candidate parameter vector, keyed by parameter name.
// Values are always numeric; integer parameters are stored as whole floats.
type Individual map[string]float64

// Clone returns an independent copy. Parents are always cloned before
// variation so crossover and mutation never corrupt a sibling.
func (ind Individual) Clone() Individual {
	out := make(Individual, len(ind))
	for k, v := range ind {
		out[k] = v
	}
	return out
}

// EvaluationResult is the record returned by the external evaluator.
// Missing fields stay at their zero value and score as 0 in objectives.
type EvaluationResult struct {
	AvgReturn    float64 `json:"avg_return"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	Volatility   float64 `json:"volatility"`
	Trades       int     `json:"trades"`
}

// Evaluator is the external backtest collaborator. Implementations must be
// safe for concurrent use: a whole population is evaluated in parallel.
type Evaluator interface {
	Evaluate(ctx context.Context, params Individual) (*EvaluationResult, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, params Individual) (*EvaluationResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, params Individual) (*EvaluationResult, error) {
	return f(ctx, params)
}

// Evaluated couples a parameter vector with its evaluation outcome.
// Rank and Crowding are NSGA-II bookkeeping recomputed every generation;
// they are never carried across generations.
type Evaluated struct {
	Params     Individual        `json:"params"`
	Results    *EvaluationResult `json:"results"`
	Fitness    float64           `json:"fitness"`
	Objectives []float64         `json:"objectives,omitempty"`

	Rank     int     `json:"-"`
	Crowding float64 `json:"-"`
}

// GenerationStats is the per-generation progress snapshot. History entries
// are append-only and read-only once the generation completes.
type GenerationStats struct {
	Generation   int          `json:"generation"`
	Best         *Evaluated   `json:"best"`
	AvgFitness   float64      `json:"avg_fitness"`
	WorstFitness float64      `json:"worst_fitness"`
	Diversity    float64      `json:"diversity"`
	ParetoFront  []*Evaluated `json:"pareto_front,omitempty"`
}

// ProgressFunc receives one GenerationStats per generation. A panicking
// callback is isolated from the search loop.
type ProgressFunc func(stats GenerationStats)

// Result is the single-objective return contract.
type Result struct {
	Best            *Evaluated        `json:"best"`
	History         []GenerationStats `json:"history"`
	FinalPopulation []*Evaluated      `json:"final_population"`
}

// MultiObjectiveResult is the multi-objective return contract.
type MultiObjectiveResult struct {
	ParetoFront     []*Evaluated      `json:"pareto_front"`
	History         []GenerationStats `json:"history"`
	FinalPopulation []*Evaluated      `json:"final_population"`
}

// MetricsSink receives optimizer telemetry. The monitoring package provides
// a Prometheus-backed implementation; the zero default drops everything.
type MetricsSink interface {
	RecordEvaluation(algorithm string, seconds float64, failed bool)
	RecordGeneration(algorithm string, bestFitness float64)
	RecordFrontSize(algorithm string, size int)
}

type nopMetrics struct{}

func (nopMetrics) RecordEvaluation(string, float64, bool) {}
func (nopMetrics) RecordGeneration(string, float64)       {}
func (nopMetrics) RecordFrontSize(string, int)            {}
