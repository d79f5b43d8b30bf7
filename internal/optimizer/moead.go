package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"unicorn/internal/logger"
)

// AggregationMethod scalarizes an objective vector against one weight
// vector. All three aggregate to a smaller-is-better score internally.
type AggregationMethod int

const (
	AggWeightedSum AggregationMethod = iota
	AggTchebycheff
	AggPBI
)

var aggregationNames = map[AggregationMethod]string{
	AggWeightedSum: "weighted_sum",
	AggTchebycheff: "tchebycheff",
	AggPBI:         "pbi",
}

func (m AggregationMethod) String() string {
	if name, ok := aggregationNames[m]; ok {
		return name
	}
	return fmt.Sprintf("aggregation(%d)", int(m))
}

// ParseAggregationMethod maps a config name back to its method.
func ParseAggregationMethod(name string) (AggregationMethod, error) {
	for m, n := range aggregationNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown aggregation method %q", name)
}

// MOEADConfig configures the decomposition-based multi-objective engine.
type MOEADConfig struct {
	// Subproblems is the number of weight vectors, and therefore the
	// population size.
	Subproblems int
	Generations int

	// NeighborhoodSize is T: mating and replacement stay within the T
	// nearest weight vectors.
	NeighborhoodSize int

	Objectives  []Objective
	Aggregation AggregationMethod
	PBITheta    float64

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

func (c *MOEADConfig) setDefaults() {
	if c.Subproblems <= 0 {
		c.Subproblems = 50
	}
	if c.Generations <= 0 {
		c.Generations = 100
	}
	if c.NeighborhoodSize <= 1 {
		c.NeighborhoodSize = 10
	}
	if c.NeighborhoodSize > c.Subproblems {
		c.NeighborhoodSize = c.Subproblems
	}
	if c.PBITheta <= 0 {
		c.PBITheta = 5
	}
	if c.Crossover == nil {
		op := CrossoverSBX
		c.Crossover = &op
	}
	if c.Mutation == nil {
		op := MutationPolynomial
		c.Mutation = &op
	}
	if c.CrossoverRate <= 0 {
		c.CrossoverRate = 0.9
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 0.1
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
}

// MOEAD decomposes a k-objective problem into scalar subproblems, one
// solution per weight vector, sharing a best-seen ideal point.
type MOEAD struct {
	space ParameterSpace
	eval  Evaluator
	cfg   MOEADConfig
	rng   *rand.Rand
	log   logger.Logger

	weights   [][]float64
	neighbors [][]int
	ideal     []float64
}

// NewMOEAD validates the inputs, spreads the weight vectors over the
// simplex and precomputes the neighborhoods.
func NewMOEAD(space ParameterSpace, eval Evaluator, cfg MOEADConfig, rng *rand.Rand) (*MOEAD, error) {
	if eval == nil {
		return nil, fmt.Errorf("moead: evaluator is required")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Objectives) < 2 {
		return nil, fmt.Errorf("moead: at least two objectives required, got %d", len(cfg.Objectives))
	}
	if rng == nil {
		return nil, fmt.Errorf("moead: random source is required")
	}
	cfg.setDefaults()

	m := &MOEAD{
		space: space,
		eval:  eval,
		cfg:   cfg,
		rng:   rng,
		log:   logger.GetGlobalLogger().WithModule("optimizer.moead"),
	}
	m.weights = simplexWeights(len(cfg.Objectives), cfg.Subproblems, rng)
	m.cfg.Subproblems = len(m.weights)
	m.neighbors = nearestNeighbors(m.weights, cfg.NeighborhoodSize)
	m.ideal = make([]float64, len(cfg.Objectives))
	for i := range m.ideal {
		m.ideal[i] = math.Inf(-1)
	}
	return m, nil
}

// Run executes the generational loop. Within a generation subproblems are
// updated strictly in index order and replacements are visible to later
// neighborhoods immediately (Gauss-Seidel style); this asymmetric update
// is intentional and part of the algorithm's convergence behavior.
func (m *MOEAD) Run(ctx context.Context) (*MultiObjectiveResult, error) {
	population := m.initPopulation()
	evaluated := m.evaluateAll(ctx, population)
	for _, e := range evaluated {
		m.updateIdeal(e.Objectives)
	}

	history := make([]GenerationStats, 0, m.cfg.Generations)

	for gen := 0; gen < m.cfg.Generations; gen++ {
		select {
		case <-ctx.Done():
			return m.finish(evaluated, history), ctx.Err()
		default:
		}

		for i := range evaluated {
			offspring := m.makeOffspring(evaluated, i, gen)
			child := evaluateOne(ctx, m.eval, offspring, m.evalOptions())
			m.updateIdeal(child.Objectives)

			for _, j := range m.neighbors[i] {
				if m.aggregate(child.Objectives, m.weights[j]) < m.aggregate(evaluated[j].Objectives, m.weights[j]) {
					evaluated[j] = child
				}
			}
		}

		front := ParetoFrontier(evaluated)
		stats := m.generationStats(gen, evaluated, front)
		history = append(history, stats)
		safeProgress(m.cfg.OnProgress, stats, m.log)
		m.cfg.Metrics.RecordGeneration("moead", stats.Best.Fitness)
		m.cfg.Metrics.RecordFrontSize("moead", len(front))
	}

	return m.finish(evaluated, history), nil
}

func (m *MOEAD) initPopulation() []Individual {
	population := make([]Individual, 0, m.cfg.Subproblems)
	for _, seed := range m.cfg.Seeds {
		if len(population) == m.cfg.Subproblems {
			break
		}
		population = append(population, m.space.Repair(seed))
	}
	for len(population) < m.cfg.Subproblems {
		population = append(population, m.space.Random(m.rng))
	}
	return population
}

func (m *MOEAD) evalOptions() evalOptions {
	opt := evalOptions{
		algorithm:   "moead",
		objectives:  m.cfg.Objectives,
		constraints: m.cfg.Constraints,
		concurrency: m.cfg.Concurrency,
		metrics:     m.cfg.Metrics,
		log:         m.log,
	}
	opt.setDefaults()
	return opt
}

func (m *MOEAD) evaluateAll(ctx context.Context, population []Individual) []*Evaluated {
	return evaluatePopulation(ctx, m.eval, population, m.evalOptions())
}

// makeOffspring breeds one child from two parents drawn from subproblem
// i's neighborhood.
func (m *MOEAD) makeOffspring(evaluated []*Evaluated, i, gen int) Individual {
	hood := m.neighbors[i]
	a := hood[m.rng.Intn(len(hood))]
	b := hood[m.rng.Intn(len(hood))]

	var child Individual
	if m.rng.Float64() < m.cfg.CrossoverRate {
		child, _ = Crossover(*m.cfg.Crossover, m.space, evaluated[a].Params, evaluated[b].Params, m.rng)
	} else {
		child = evaluated[a].Params.Clone()
	}
	return Mutate(*m.cfg.Mutation, m.space, child, m.cfg.MutationRate, gen, m.cfg.Generations, m.rng)
}

// updateIdeal lifts the shared best-seen point per objective.
func (m *MOEAD) updateIdeal(objectives []float64) {
	for i, v := range objectives {
		if v > m.ideal[i] {
			m.ideal[i] = v
		}
	}
}

// aggregate scalarizes an objective vector against one weight vector;
// smaller is better for all three methods.
func (m *MOEAD) aggregate(objectives, weight []float64) float64 {
	switch m.cfg.Aggregation {
	case AggTchebycheff:
		worst := math.Inf(-1)
		for j, f := range objectives {
			w := weight[j]
			if w < 1e-6 {
				w = 1e-6
			}
			if v := w * math.Abs(m.ideal[j]-f); v > worst {
				worst = v
			}
		}
		return worst
	case AggPBI:
		// d1: distance traveled from the ideal along the weight vector,
		// d2: perpendicular distance off the vector.
		wnorm := norm2(weight)
		if wnorm == 0 {
			wnorm = 1
		}
		var dot float64
		diff := make([]float64, len(objectives))
		for j, f := range objectives {
			diff[j] = m.ideal[j] - f
			dot += diff[j] * weight[j]
		}
		d1 := dot / wnorm
		var d2sq float64
		for j := range diff {
			p := diff[j] - d1*weight[j]/wnorm
			d2sq += p * p
		}
		return d1 + m.cfg.PBITheta*math.Sqrt(d2sq)
	default: // weighted sum, maximize -> negate
		var sum float64
		for j, f := range objectives {
			sum += weight[j] * f
		}
		return -sum
	}
}

func (m *MOEAD) generationStats(gen int, evaluated []*Evaluated, front []*Evaluated) GenerationStats {
	population := make([]Individual, len(evaluated))
	best := evaluated[0]
	var sum float64
	worst := evaluated[0].Fitness
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
		Diversity:    Diversity(m.space, population),
		ParetoFront:  frontCopy,
	}
}

func (m *MOEAD) finish(evaluated []*Evaluated, history []GenerationStats) *MultiObjectiveResult {
	return &MultiObjectiveResult{
		ParetoFront:     ParetoFrontier(evaluated),
		History:         history,
		FinalPopulation: evaluated,
	}
}

// simplexWeights spreads count weight vectors approximately uniformly over
// the k-simplex via a lattice; when the lattice overshoots, the set is
// thinned evenly, and random simplex draws pad any shortfall.
func simplexWeights(k, count int, rng *rand.Rand) [][]float64 {
	h := 1
	for latticeSize(h, k) < count {
		h++
	}
	lattice := latticePoints(h, k)
	if len(lattice) > count {
		stride := float64(len(lattice)) / float64(count)
		thinned := make([][]float64, 0, count)
		for i := 0; i < count; i++ {
			thinned = append(thinned, lattice[int(float64(i)*stride)])
		}
		lattice = thinned
	}
	for len(lattice) < count {
		lattice = append(lattice, randomSimplex(k, rng))
	}
	return lattice
}

// latticeSize is C(h+k-1, k-1).
func latticeSize(h, k int) int {
	size := 1
	for i := 1; i < k; i++ {
		size = size * (h + i) / i
	}
	return size
}

// latticePoints enumerates all compositions of h into k parts, scaled to
// the unit simplex.
func latticePoints(h, k int) [][]float64 {
	var points [][]float64
	current := make([]int, k)
	var walk func(idx, remaining int)
	walk = func(idx, remaining int) {
		if idx == k-1 {
			current[idx] = remaining
			point := make([]float64, k)
			for i, v := range current {
				point[i] = float64(v) / float64(h)
			}
			points = append(points, point)
			return
		}
		for v := 0; v <= remaining; v++ {
			current[idx] = v
			walk(idx+1, remaining-v)
		}
	}
	walk(0, h)
	return points
}

func randomSimplex(k int, rng *rand.Rand) []float64 {
	w := make([]float64, k)
	var sum float64
	for i := range w {
		w[i] = -math.Log(1 - rng.Float64())
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// nearestNeighbors returns, per weight vector, the T nearest vectors by
// Euclidean distance (each vector is its own nearest neighbor).
func nearestNeighbors(weights [][]float64, t int) [][]int {
	n := len(weights)
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		order := make([]int, n)
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			return weightDistance(weights[i], weights[order[a]]) < weightDistance(weights[i], weights[order[b]])
		})
		neighbors[i] = order[:t]
	}
	return neighbors
}

func weightDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
