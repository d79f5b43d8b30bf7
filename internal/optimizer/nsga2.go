package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"unicorn/internal/logger"
)

// NSGAIIConfig configures the multi-objective NSGA-II engine.
type NSGAIIConfig struct {
	PopulationSize int
	Generations    int

	// Objectives define the score vector; at least two are required.
	Objectives []Objective

	// Crossover and Mutation are pointers so the zero-valued operators
	// stay selectable; nil picks SBX and polynomial.
	Crossover     *CrossoverOp
	Mutation      *MutationOp
	CrossoverRate float64
	MutationRate  float64

	Constraints []Constraint
	Seeds       []Individual
	Concurrency int

	OnProgress ProgressFunc
	Metrics    MetricsSink
}

func (c *NSGAIIConfig) setDefaults() {
	if c.PopulationSize <= 0 {
		c.PopulationSize = 50
	}
	if c.Generations <= 0 {
		c.Generations = 100
	}
	if c.CrossoverRate <= 0 {
		c.CrossoverRate = 0.9
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 0.1
	}
	if c.Crossover == nil {
		op := CrossoverSBX
		c.Crossover = &op
	}
	if c.Mutation == nil {
		op := MutationPolynomial
		c.Mutation = &op
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
}

// NSGAII is the elitist non-dominated sorting genetic algorithm.
type NSGAII struct {
	space ParameterSpace
	eval  Evaluator
	cfg   NSGAIIConfig
	rng   *rand.Rand
	log   logger.Logger
}

// NewNSGAII validates the inputs and builds the engine.
func NewNSGAII(space ParameterSpace, eval Evaluator, cfg NSGAIIConfig, rng *rand.Rand) (*NSGAII, error) {
	if eval == nil {
		return nil, fmt.Errorf("nsga2: evaluator is required")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Objectives) < 2 {
		return nil, fmt.Errorf("nsga2: at least two objectives required, got %d", len(cfg.Objectives))
	}
	if rng == nil {
		return nil, fmt.Errorf("nsga2: random source is required")
	}
	cfg.setDefaults()
	return &NSGAII{
		space: space,
		eval:  eval,
		cfg:   cfg,
		rng:   rng,
		log:   logger.GetGlobalLogger().WithModule("optimizer.nsga2"),
	}, nil
}

// Run executes the generational loop and returns the final rank-0 front.
func (n *NSGAII) Run(ctx context.Context) (*MultiObjectiveResult, error) {
	population := n.initPopulation()
	evaluated := n.evaluate(ctx, population)
	rankPopulation(evaluated)

	history := make([]GenerationStats, 0, n.cfg.Generations)

	for gen := 0; gen < n.cfg.Generations; gen++ {
		select {
		case <-ctx.Done():
			return n.finish(evaluated, history), ctx.Err()
		default:
		}

		offspring := n.makeOffspring(evaluated, gen)
		offspringEval := n.evaluate(ctx, offspring)

		// Elitist mu+lambda selection over the combined 2N pool.
		combined := append(append([]*Evaluated{}, evaluated...), offspringEval...)
		evaluated = selectNextGeneration(combined, n.cfg.PopulationSize)

		front := ParetoFrontier(evaluated)
		stats := n.generationStats(gen, evaluated, front)
		history = append(history, stats)
		safeProgress(n.cfg.OnProgress, stats, n.log)
		n.cfg.Metrics.RecordGeneration("nsga2", stats.Best.Fitness)
		n.cfg.Metrics.RecordFrontSize("nsga2", len(front))
	}

	return n.finish(evaluated, history), nil
}

func (n *NSGAII) initPopulation() []Individual {
	population := make([]Individual, 0, n.cfg.PopulationSize)
	for _, seed := range n.cfg.Seeds {
		if len(population) == n.cfg.PopulationSize {
			break
		}
		population = append(population, n.space.Repair(seed))
	}
	for len(population) < n.cfg.PopulationSize {
		population = append(population, n.space.Random(n.rng))
	}
	return population
}

func (n *NSGAII) evaluate(ctx context.Context, population []Individual) []*Evaluated {
	return evaluatePopulation(ctx, n.eval, population, evalOptions{
		algorithm:   "nsga2",
		objectives:  n.cfg.Objectives,
		constraints: n.cfg.Constraints,
		concurrency: n.cfg.Concurrency,
		metrics:     n.cfg.Metrics,
		log:         n.log,
	})
}

// makeOffspring breeds a full population via crowded binary tournament,
// crossover and mutation. Children are repaired inside the operators.
func (n *NSGAII) makeOffspring(evaluated []*Evaluated, gen int) []Individual {
	offspring := make([]Individual, 0, n.cfg.PopulationSize)
	for len(offspring) < n.cfg.PopulationSize {
		p1 := n.crowdedTournament(evaluated)
		p2 := n.crowdedTournament(evaluated)

		var c1, c2 Individual
		if n.rng.Float64() < n.cfg.CrossoverRate {
			c1, c2 = Crossover(*n.cfg.Crossover, n.space, p1.Params, p2.Params, n.rng)
		} else {
			c1, c2 = p1.Params.Clone(), p2.Params.Clone()
		}
		for _, child := range []Individual{c1, c2} {
			if len(offspring) == n.cfg.PopulationSize {
				break
			}
			offspring = append(offspring, Mutate(*n.cfg.Mutation, n.space, child, n.cfg.MutationRate, gen, n.cfg.Generations, n.rng))
		}
	}
	return offspring
}

// crowdedTournament prefers lower rank, then larger crowding distance.
func (n *NSGAII) crowdedTournament(evaluated []*Evaluated) *Evaluated {
	a := evaluated[n.rng.Intn(len(evaluated))]
	b := evaluated[n.rng.Intn(len(evaluated))]
	if b.Rank < a.Rank || (b.Rank == a.Rank && b.Crowding > a.Crowding) {
		return b
	}
	return a
}

func (n *NSGAII) generationStats(gen int, evaluated []*Evaluated, front []*Evaluated) GenerationStats {
	population := make([]Individual, len(evaluated))
	best := evaluated[0]
	var sum float64
	worst := math.Inf(1)
	for i, e := range evaluated {
		population[i] = e.Params
		sum += e.Fitness
		if e.Fitness > best.Fitness {
			best = e
		}
		if e.Fitness < worst {
			worst = e.Fitness
		}
	}
	frontCopy := make([]*Evaluated, len(front))
	for i, e := range front {
		frontCopy[i] = cloneEvaluated(e)
	}
	return GenerationStats{
		Generation:   gen,
		Best:         cloneEvaluated(best),
		AvgFitness:   sum / float64(len(evaluated)),
		WorstFitness: worst,
		Diversity:    Diversity(n.space, population),
		ParetoFront:  frontCopy,
	}
}

func (n *NSGAII) finish(evaluated []*Evaluated, history []GenerationStats) *MultiObjectiveResult {
	return &MultiObjectiveResult{
		ParetoFront:     ParetoFrontier(evaluated),
		History:         history,
		FinalPopulation: evaluated,
	}
}

// Dominates reports whether objective vector a Pareto-dominates b under
// maximize-is-better semantics: at least as good everywhere and strictly
// better somewhere.
func Dominates(a, b []float64) bool {
	strict := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			strict = true
		}
	}
	return strict
}

// NonDominatedSort partitions a population into ranked fronts: front 0 is
// the non-dominated set, front i+1 the individuals that become
// non-dominated once fronts 0..i are removed. Domination bookkeeping lives
// in slot-indexed scratch arrays, recomputed fresh on every call.
func NonDominatedSort(evaluated []*Evaluated) [][]*Evaluated {
	n := len(evaluated)
	dominationCount := make([]int, n)
	dominatedSet := make([][]int, n)

	var fronts [][]*Evaluated
	var current []int

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if Dominates(evaluated[i].Objectives, evaluated[j].Objectives) {
				dominatedSet[i] = append(dominatedSet[i], j)
			} else if Dominates(evaluated[j].Objectives, evaluated[i].Objectives) {
				dominationCount[i]++
			}
		}
		if dominationCount[i] == 0 {
			evaluated[i].Rank = 0
			current = append(current, i)
		}
	}

	rank := 0
	for len(current) > 0 {
		front := make([]*Evaluated, len(current))
		for i, idx := range current {
			front[i] = evaluated[idx]
		}
		fronts = append(fronts, front)

		var next []int
		for _, idx := range current {
			for _, dominated := range dominatedSet[idx] {
				dominationCount[dominated]--
				if dominationCount[dominated] == 0 {
					evaluated[dominated].Rank = rank + 1
					next = append(next, dominated)
				}
			}
		}
		rank++
		current = next
	}
	return fronts
}

// CrowdingDistance assigns the diversity estimate within one front: per
// objective, boundary points get infinite distance and interior points
// accumulate normalized neighbor gaps.
func CrowdingDistance(front []*Evaluated) {
	if len(front) == 0 {
		return
	}
	if len(front) <= 2 {
		for _, e := range front {
			e.Crowding = math.Inf(1)
		}
		return
	}
	for _, e := range front {
		e.Crowding = 0
	}
	numObjectives := len(front[0].Objectives)
	for m := 0; m < numObjectives; m++ {
		m := m
		sort.SliceStable(front, func(i, j int) bool {
			return front[i].Objectives[m] < front[j].Objectives[m]
		})
		front[0].Crowding = math.Inf(1)
		front[len(front)-1].Crowding = math.Inf(1)

		span := front[len(front)-1].Objectives[m] - front[0].Objectives[m]
		if span == 0 {
			continue
		}
		for i := 1; i < len(front)-1; i++ {
			front[i].Crowding += (front[i+1].Objectives[m] - front[i-1].Objectives[m]) / span
		}
	}
}

// rankPopulation recomputes rank and crowding for a whole population.
func rankPopulation(evaluated []*Evaluated) {
	for _, front := range NonDominatedSort(evaluated) {
		CrowdingDistance(front)
	}
}

// selectNextGeneration fills the next population front by front; a front
// that does not fit entirely is truncated by descending crowding distance.
func selectNextGeneration(combined []*Evaluated, size int) []*Evaluated {
	fronts := NonDominatedSort(combined)
	next := make([]*Evaluated, 0, size)
	for _, front := range fronts {
		CrowdingDistance(front)
		if len(next)+len(front) <= size {
			next = append(next, front...)
			continue
		}
		sort.SliceStable(front, func(i, j int) bool {
			return front[i].Crowding > front[j].Crowding
		})
		next = append(next, front[:size-len(next)]...)
		break
	}
	return next
}

// ParetoFrontier returns the non-dominated subset of a population. It is a
// view over the input; membership can change entirely between generations.
func ParetoFrontier(evaluated []*Evaluated) []*Evaluated {
	var front []*Evaluated
	for i, candidate := range evaluated {
		dominated := false
		for j, other := range evaluated {
			if i == j {
				continue
			}
			if Dominates(other.Objectives, candidate.Objectives) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, candidate)
		}
	}
	return front
}
