package optimizer

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"unicorn/internal/logger"
)

// worstFitness is assigned when the external evaluator fails for one
// individual, so a single bad parameter combination cannot halt a
// generation.
const worstFitness = -math.MaxFloat64

// evalOptions bundles everything the shared evaluation fan-out needs.
type evalOptions struct {
	algorithm   string
	weights     Weights
	objectives  []Objective
	constraints []Constraint
	concurrency int
	metrics     MetricsSink
	log         logger.Logger
}

func (o *evalOptions) setDefaults() {
	// Multi-objective engines still get a scalar fitness from the default
	// weighting; it feeds stats and tie-breaks, not selection.
	if o.weights == nil {
		o.weights = DefaultWeights()
	}
	if o.concurrency <= 0 {
		o.concurrency = 8
	}
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger()
	}
}

// evaluatePopulation runs the external evaluator over a whole population
// concurrently and blocks until every call has finished. Generation g+1
// never begins before all evaluations of generation g complete. Slots are
// independent, so the workers share no mutable state.
func evaluatePopulation(ctx context.Context, ev Evaluator, population []Individual, opt evalOptions) []*Evaluated {
	evaluated := make([]*Evaluated, len(population))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.concurrency)
	for i := range population {
		i := i
		g.Go(func() error {
			evaluated[i] = evaluateOne(gctx, ev, population[i], opt)
			return nil
		})
	}
	// Workers never return an error: per-individual failures are folded
	// into worstFitness instead of aborting the generation.
	_ = g.Wait()
	return evaluated
}

// evaluateOne scores a single individual. Evaluator errors and panics
// degrade to worstFitness rather than propagating.
func evaluateOne(ctx context.Context, ev Evaluator, params Individual, opt evalOptions) *Evaluated {
	start := time.Now()
	results, err := callEvaluator(ctx, ev, params)
	opt.metrics.RecordEvaluation(opt.algorithm, time.Since(start).Seconds(), err != nil)

	e := &Evaluated{Params: params, Results: results}
	if err != nil {
		opt.log.Warn("evaluation failed", "algorithm", opt.algorithm, "error", err)
		e.Fitness = worstFitness
		if len(opt.objectives) > 0 {
			e.Objectives = make([]float64, len(opt.objectives))
			for i := range e.Objectives {
				e.Objectives[i] = worstFitness
			}
		}
		return e
	}

	penalty := ConstraintPenalty(params, opt.constraints)
	if len(opt.objectives) > 0 {
		e.Objectives = ObjectiveVector(results, opt.objectives)
		for i := range e.Objectives {
			e.Objectives[i] -= penalty
		}
	}
	e.Fitness = WeightedFitness(results, opt.weights) - penalty
	return e
}

// callEvaluator shields the loop from a panicking collaborator.
func callEvaluator(ctx context.Context, ev Evaluator, params Individual) (results *EvaluationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = &evaluatorPanicError{value: r}
		}
	}()
	return ev.Evaluate(ctx, params)
}

type evaluatorPanicError struct {
	value interface{}
}

func (e *evaluatorPanicError) Error() string {
	return "evaluator panicked"
}

// safeProgress invokes the caller's progress callback, isolating the
// optimization state from a panicking or misbehaving callback.
func safeProgress(cb ProgressFunc, stats GenerationStats, log logger.Logger) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("progress callback panicked", "generation", stats.Generation, "panic", r)
		}
	}()
	cb(stats)
}
