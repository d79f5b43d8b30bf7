package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"unicorn/internal/logger"
)

// GAConfig configures the single-objective genetic algorithm.
type GAConfig struct {
	PopulationSize int
	Generations    int
	EliteSize      int
	CrossoverRate  float64
	MutationRate   float64

	Crossover      CrossoverOp
	Mutation       MutationOp
	Selection      SelectionOp
	TournamentSize int
	Temperature    float64

	// AdaptiveOperators replaces the fixed crossover/mutation pair with
	// the credit-based operator selector.
	AdaptiveOperators bool

	Weights     Weights
	Constraints []Constraint

	// Seeds are mixed into the otherwise random initial population.
	Seeds []Individual

	Concurrency int

	// Convergence: the run stops early when the variance of the average
	// fitness over the trailing window drops below epsilon.
	ConvergenceWindow  int
	ConvergenceEpsilon float64

	OnProgress ProgressFunc
	Metrics    MetricsSink
}

func (c *GAConfig) setDefaults() {
	if c.PopulationSize <= 0 {
		c.PopulationSize = 50
	}
	if c.Generations <= 0 {
		c.Generations = 100
	}
	if c.EliteSize <= 0 {
		c.EliteSize = 2
	}
	if c.EliteSize > c.PopulationSize {
		c.EliteSize = c.PopulationSize
	}
	if c.CrossoverRate <= 0 {
		c.CrossoverRate = 0.8
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 0.1
	}
	if c.TournamentSize <= 0 {
		c.TournamentSize = 3
	}
	if c.Weights == nil {
		c.Weights = DefaultWeights()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.ConvergenceWindow <= 0 {
		c.ConvergenceWindow = 5
	}
	if c.ConvergenceEpsilon <= 0 {
		c.ConvergenceEpsilon = 1e-8
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
}

// GeneticAlgorithm is the elitist generational GA over a parameter space.
type GeneticAlgorithm struct {
	space ParameterSpace
	eval  Evaluator
	cfg   GAConfig
	rng   *rand.Rand
	log   logger.Logger

	selector   *OperatorSelector
	pendingOps []operatorPair

	bestEver   *Evaluated
	avgHistory []float64
}

// NewGeneticAlgorithm validates the inputs and builds a GA. A missing
// evaluator is a configuration error caught before any population exists.
func NewGeneticAlgorithm(space ParameterSpace, eval Evaluator, cfg GAConfig, rng *rand.Rand) (*GeneticAlgorithm, error) {
	if eval == nil {
		return nil, fmt.Errorf("genetic algorithm: evaluator is required")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("genetic algorithm: random source is required")
	}
	cfg.setDefaults()
	ga := &GeneticAlgorithm{
		space: space,
		eval:  eval,
		cfg:   cfg,
		rng:   rng,
		log:   logger.GetGlobalLogger().WithModule("optimizer.ga"),
	}
	if cfg.AdaptiveOperators {
		ga.selector = NewOperatorSelector(rng)
	}
	return ga, nil
}

// Run executes the generational loop and returns the best individual,
// the full per-generation history and the final population.
func (ga *GeneticAlgorithm) Run(ctx context.Context) (*Result, error) {
	population := ga.initPopulation()
	history := make([]GenerationStats, 0, ga.cfg.Generations)

	var evaluated []*Evaluated
	for gen := 0; gen < ga.cfg.Generations; gen++ {
		select {
		case <-ctx.Done():
			return ga.finish(evaluated, history), ctx.Err()
		default:
		}

		evaluated = ga.evaluate(ctx, population)
		// Credit while evaluated still matches the breeding order of
		// nextGeneration; the rank sort below breaks that pairing.
		ga.creditOperators(evaluated)
		sortByFitnessDesc(evaluated)
		ga.updateBest(evaluated[0])

		stats := ga.generationStats(gen, evaluated, population)
		history = append(history, stats)
		safeProgress(ga.cfg.OnProgress, stats, ga.log)
		ga.cfg.Metrics.RecordGeneration("ga", ga.bestEver.Fitness)

		if ga.converged(stats.AvgFitness) {
			ga.log.Info("converged early", "generation", gen, "best_fitness", ga.bestEver.Fitness)
			break
		}
		if gen < ga.cfg.Generations-1 {
			population = ga.nextGeneration(evaluated, gen)
		}
	}

	return ga.finish(evaluated, history), nil
}

// initPopulation seeds the caller-provided individuals first, then fills
// the rest with random feasible draws. Every member passes repair.
func (ga *GeneticAlgorithm) initPopulation() []Individual {
	population := make([]Individual, 0, ga.cfg.PopulationSize)
	for _, seed := range ga.cfg.Seeds {
		if len(population) == ga.cfg.PopulationSize {
			break
		}
		population = append(population, ga.space.Repair(seed))
	}
	for len(population) < ga.cfg.PopulationSize {
		population = append(population, ga.space.Random(ga.rng))
	}
	return population
}

func (ga *GeneticAlgorithm) evaluate(ctx context.Context, population []Individual) []*Evaluated {
	return evaluatePopulation(ctx, ga.eval, population, evalOptions{
		algorithm:   "ga",
		weights:     ga.cfg.Weights,
		constraints: ga.cfg.Constraints,
		concurrency: ga.cfg.Concurrency,
		metrics:     ga.cfg.Metrics,
		log:         ga.log,
	})
}

// nextGeneration carries the elites unchanged and fills the remainder via
// selection, crossover, mutation and repair.
func (ga *GeneticAlgorithm) nextGeneration(evaluated []*Evaluated, gen int) []Individual {
	next := make([]Individual, 0, ga.cfg.PopulationSize)
	ga.pendingOps = ga.pendingOps[:0]
	for i := 0; i < ga.cfg.EliteSize; i++ {
		next = append(next, evaluated[i].Params.Clone())
		ga.pendingOps = append(ga.pendingOps, operatorPair{elite: true})
	}

	selCfg := SelectionConfig{
		TournamentSize: ga.cfg.TournamentSize,
		Temperature:    ga.cfg.Temperature,
	}
	for len(next) < ga.cfg.PopulationSize {
		p1 := Select(ga.cfg.Selection, evaluated, selCfg, ga.rng)
		p2 := Select(ga.cfg.Selection, evaluated, selCfg, ga.rng)

		cxOp, mutOp := ga.cfg.Crossover, ga.cfg.Mutation
		if ga.selector != nil {
			cxOp, mutOp = ga.selector.Pick()
		}

		var c1, c2 Individual
		if ga.rng.Float64() < ga.cfg.CrossoverRate {
			c1, c2 = Crossover(cxOp, ga.space, p1.Params, p2.Params, ga.rng)
		} else {
			c1, c2 = p1.Params.Clone(), p2.Params.Clone()
		}

		parentMean := 0.5 * (p1.Fitness + p2.Fitness)
		for _, child := range []Individual{c1, c2} {
			if len(next) == ga.cfg.PopulationSize {
				break
			}
			mutated := Mutate(mutOp, ga.space, child, ga.cfg.MutationRate, gen, ga.cfg.Generations, ga.rng)
			next = append(next, mutated)
			ga.pendingOps = append(ga.pendingOps, operatorPair{
				crossover:  cxOp,
				mutation:   mutOp,
				parentMean: parentMean,
			})
		}
	}
	return next
}

// creditOperators rewards the operator pair that produced each individual
// once its fitness is known, one generation later.
func (ga *GeneticAlgorithm) creditOperators(evaluated []*Evaluated) {
	if ga.selector == nil || len(ga.pendingOps) != len(evaluated) {
		return
	}
	for i, op := range ga.pendingOps {
		if op.elite {
			continue
		}
		ga.selector.Reward(op.crossover, op.mutation, evaluated[i].Fitness-op.parentMean)
	}
}

func (ga *GeneticAlgorithm) updateBest(best *Evaluated) {
	if ga.bestEver == nil || best.Fitness > ga.bestEver.Fitness {
		ga.bestEver = cloneEvaluated(best)
	}
}

func (ga *GeneticAlgorithm) generationStats(gen int, evaluated []*Evaluated, population []Individual) GenerationStats {
	var sum float64
	for _, e := range evaluated {
		sum += e.Fitness
	}
	return GenerationStats{
		Generation:   gen,
		Best:         cloneEvaluated(evaluated[0]),
		AvgFitness:   sum / float64(len(evaluated)),
		WorstFitness: evaluated[len(evaluated)-1].Fitness,
		Diversity:    Diversity(ga.space, population),
	}
}

// converged tracks the average fitness and reports true once its variance
// over the trailing window falls below epsilon.
func (ga *GeneticAlgorithm) converged(avgFitness float64) bool {
	ga.avgHistory = append(ga.avgHistory, avgFitness)
	w := ga.cfg.ConvergenceWindow
	if len(ga.avgHistory) < w {
		return false
	}
	window := ga.avgHistory[len(ga.avgHistory)-w:]
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(w)
	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(w)
	return variance < ga.cfg.ConvergenceEpsilon
}

func (ga *GeneticAlgorithm) finish(evaluated []*Evaluated, history []GenerationStats) *Result {
	return &Result{
		Best:            ga.bestEver,
		History:         history,
		FinalPopulation: evaluated,
	}
}

type operatorPair struct {
	crossover  CrossoverOp
	mutation   MutationOp
	parentMean float64
	elite      bool
}

func sortByFitnessDesc(evaluated []*Evaluated) {
	sort.SliceStable(evaluated, func(i, j int) bool {
		return evaluated[i].Fitness > evaluated[j].Fitness
	})
}

func cloneEvaluated(e *Evaluated) *Evaluated {
	if e == nil {
		return nil
	}
	out := &Evaluated{
		Params:   e.Params.Clone(),
		Results:  e.Results,
		Fitness:  e.Fitness,
		Rank:     e.Rank,
		Crowding: e.Crowding,
	}
	if e.Objectives != nil {
		out.Objectives = append([]float64(nil), e.Objectives...)
	}
	return out
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
