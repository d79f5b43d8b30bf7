package optimizer

import (
	"context"
	"fmt"
	"math/rand"

	"unicorn/internal/logger"
)

// DEStrategy selects how the mutant vector is constructed.
type DEStrategy int

const (
	DERand1Bin DEStrategy = iota
	DEBest1Bin
	DECurrentToBest1Bin
)

var deStrategyNames = map[DEStrategy]string{
	DERand1Bin:          "rand/1/bin",
	DEBest1Bin:          "best/1/bin",
	DECurrentToBest1Bin: "current-to-best/1/bin",
}

func (s DEStrategy) String() string {
	if name, ok := deStrategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("de(%d)", int(s))
}

// ParseDEStrategy maps a config name back to its strategy.
func ParseDEStrategy(name string) (DEStrategy, error) {
	for s, n := range deStrategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown DE strategy %q", name)
}

// jDE self-adaptation constants: each parameter pair is refreshed with a
// small independent probability and survives with its individual.
const (
	jdeTauF  = 0.1
	jdeTauCR = 0.1
	jdeFMin  = 0.1
	jdeFSpan = 0.9
)

// DEConfig configures differential evolution.
type DEConfig struct {
	PopulationSize int
	Iterations     int
	F              float64 // differential weight
	CR             float64 // crossover probability
	Strategy       DEStrategy

	// SelfAdaptive enables jDE-style online adaptation of F and CR.
	SelfAdaptive bool

	Weights     Weights
	Constraints []Constraint
	Seeds       []Individual
	Concurrency int

	OnProgress ProgressFunc
	Metrics    MetricsSink
}

func (c *DEConfig) setDefaults() {
	if c.PopulationSize < 4 {
		c.PopulationSize = 50
	}
	if c.Iterations <= 0 {
		c.Iterations = 100
	}
	if c.F <= 0 {
		c.F = 0.5
	}
	if c.CR <= 0 {
		c.CR = 0.9
	}
	if c.Weights == nil {
		c.Weights = DefaultWeights()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
}

// DifferentialEvolution maintains one population of candidate vectors and
// improves it by greedy trial replacement.
type DifferentialEvolution struct {
	space ParameterSpace
	eval  Evaluator
	cfg   DEConfig
	rng   *rand.Rand
	log   logger.Logger

	// Per-slot control parameters; fixed to cfg.F/cfg.CR unless
	// self-adaptation is on.
	fs  []float64
	crs []float64

	bestEver *Evaluated
}

// NewDifferentialEvolution validates the inputs and builds the engine.
func NewDifferentialEvolution(space ParameterSpace, eval Evaluator, cfg DEConfig, rng *rand.Rand) (*DifferentialEvolution, error) {
	if eval == nil {
		return nil, fmt.Errorf("differential evolution: evaluator is required")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("differential evolution: random source is required")
	}
	cfg.setDefaults()
	de := &DifferentialEvolution{
		space: space,
		eval:  eval,
		cfg:   cfg,
		rng:   rng,
		log:   logger.GetGlobalLogger().WithModule("optimizer.de"),
	}
	de.fs = make([]float64, cfg.PopulationSize)
	de.crs = make([]float64, cfg.PopulationSize)
	for i := range de.fs {
		de.fs[i] = cfg.F
		de.crs[i] = cfg.CR
	}
	return de, nil
}

// Run executes the iteration loop.
func (de *DifferentialEvolution) Run(ctx context.Context) (*Result, error) {
	population := de.initPopulation()
	evaluated := de.evaluate(ctx, population)
	de.updateBest(evaluated)

	history := make([]GenerationStats, 0, de.cfg.Iterations)

	for iter := 0; iter < de.cfg.Iterations; iter++ {
		select {
		case <-ctx.Done():
			return de.finish(evaluated, history), ctx.Err()
		default:
		}

		trials, trialF, trialCR := de.makeTrials(evaluated)
		trialEval := de.evaluate(ctx, trials)

		// Greedy selection: a trial replaces its target only on strict
		// fitness improvement; its (F, CR) pair survives with it.
		for i, trial := range trialEval {
			if trial.Fitness > evaluated[i].Fitness {
				evaluated[i] = trial
				de.fs[i] = trialF[i]
				de.crs[i] = trialCR[i]
			}
		}
		de.updateBest(evaluated)

		stats := de.generationStats(iter, evaluated)
		history = append(history, stats)
		safeProgress(de.cfg.OnProgress, stats, de.log)
		de.cfg.Metrics.RecordGeneration("de", de.bestEver.Fitness)
	}

	return de.finish(evaluated, history), nil
}

func (de *DifferentialEvolution) initPopulation() []Individual {
	population := make([]Individual, 0, de.cfg.PopulationSize)
	for _, seed := range de.cfg.Seeds {
		if len(population) == de.cfg.PopulationSize {
			break
		}
		population = append(population, de.space.Repair(seed))
	}
	for len(population) < de.cfg.PopulationSize {
		population = append(population, de.space.Random(de.rng))
	}
	return population
}

func (de *DifferentialEvolution) evaluate(ctx context.Context, population []Individual) []*Evaluated {
	return evaluatePopulation(ctx, de.eval, population, evalOptions{
		algorithm:   "de",
		weights:     de.cfg.Weights,
		constraints: de.cfg.Constraints,
		concurrency: de.cfg.Concurrency,
		metrics:     de.cfg.Metrics,
		log:         de.log,
	})
}

// makeTrials builds one trial per target, returning the control-parameter
// pairs used so survivors keep theirs.
func (de *DifferentialEvolution) makeTrials(evaluated []*Evaluated) ([]Individual, []float64, []float64) {
	n := len(evaluated)
	trials := make([]Individual, n)
	trialF := make([]float64, n)
	trialCR := make([]float64, n)

	best := de.currentBest(evaluated)

	for i := 0; i < n; i++ {
		f, cr := de.fs[i], de.crs[i]
		if de.cfg.SelfAdaptive {
			if de.rng.Float64() < jdeTauF {
				f = jdeFMin + jdeFSpan*de.rng.Float64()
			}
			if de.rng.Float64() < jdeTauCR {
				cr = de.rng.Float64()
			}
		}
		trialF[i] = f
		trialCR[i] = cr

		r1, r2, r3 := de.distinctIndices(i, n)
		target := evaluated[i].Params
		mutant := make(Individual, len(de.space))
		for _, spec := range de.space {
			name := spec.Name
			switch de.cfg.Strategy {
			case DEBest1Bin:
				mutant[name] = best.Params[name] + f*(evaluated[r1].Params[name]-evaluated[r2].Params[name])
			case DECurrentToBest1Bin:
				mutant[name] = target[name] + f*(best.Params[name]-target[name]) + f*(evaluated[r1].Params[name]-evaluated[r2].Params[name])
			default: // rand/1/bin
				mutant[name] = evaluated[r1].Params[name] + f*(evaluated[r2].Params[name]-evaluated[r3].Params[name])
			}
		}

		// Binomial crossover with a forced index so at least one
		// coordinate always comes from the mutant.
		trial := target.Clone()
		forced := de.rng.Intn(len(de.space))
		for j, spec := range de.space {
			if de.rng.Float64() < cr || j == forced {
				trial[spec.Name] = mutant[spec.Name]
			}
		}
		trials[i] = de.space.Repair(trial)
	}
	return trials, trialF, trialCR
}

// distinctIndices draws three population indices distinct from i and from
// each other.
func (de *DifferentialEvolution) distinctIndices(i, n int) (int, int, int) {
	draw := func(exclude ...int) int {
	retry:
		for {
			v := de.rng.Intn(n)
			for _, e := range exclude {
				if v == e {
					continue retry
				}
			}
			return v
		}
	}
	r1 := draw(i)
	r2 := draw(i, r1)
	r3 := draw(i, r1, r2)
	return r1, r2, r3
}

func (de *DifferentialEvolution) currentBest(evaluated []*Evaluated) *Evaluated {
	best := evaluated[0]
	for _, e := range evaluated[1:] {
		if e.Fitness > best.Fitness {
			best = e
		}
	}
	return best
}

func (de *DifferentialEvolution) updateBest(evaluated []*Evaluated) {
	best := de.currentBest(evaluated)
	if de.bestEver == nil || best.Fitness > de.bestEver.Fitness {
		de.bestEver = cloneEvaluated(best)
	}
}

func (de *DifferentialEvolution) generationStats(iter int, evaluated []*Evaluated) GenerationStats {
	population := make([]Individual, len(evaluated))
	var sum float64
	worst := evaluated[0].Fitness
	best := evaluated[0]
	for i, e := range evaluated {
		population[i] = e.Params
		sum += e.Fitness
		if e.Fitness < worst {
			worst = e.Fitness
		}
		if e.Fitness > best.Fitness {
			best = e
		}
	}
	return GenerationStats{
		Generation:   iter,
		Best:         cloneEvaluated(best),
		AvgFitness:   sum / float64(len(evaluated)),
		WorstFitness: worst,
		Diversity:    Diversity(de.space, population),
	}
}

func (de *DifferentialEvolution) finish(evaluated []*Evaluated, history []GenerationStats) *Result {
	return &Result{
		Best:            de.bestEver,
		History:         history,
		FinalPopulation: evaluated,
	}
}
