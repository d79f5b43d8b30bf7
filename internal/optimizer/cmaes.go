package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"unicorn/internal/logger"
)

// CMAESConfig configures the covariance matrix adaptation evolution
// strategy. The search runs in the normalized unit cube and is projected
// back onto the parameter space for evaluation.
type CMAESConfig struct {
	Generations int

	// Lambda is the offspring count per generation; 0 picks the standard
	// 4+floor(3*ln(n)). Mu defaults to Lambda/2.
	Lambda int
	Mu     int

	// Sigma0 is the initial global step size in normalized coordinates.
	Sigma0 float64

	Weights     Weights
	Constraints []Constraint

	// Seeds: the first seed, when present, becomes the initial mean.
	Seeds       []Individual
	Concurrency int

	OnProgress ProgressFunc
	Metrics    MetricsSink
}

func (c *CMAESConfig) setDefaults(n int) {
	if c.Generations <= 0 {
		c.Generations = 100
	}
	if c.Lambda <= 0 {
		c.Lambda = 4 + int(3*math.Log(float64(n)))
	}
	if c.Lambda < 4 {
		c.Lambda = 4
	}
	if c.Mu <= 0 || c.Mu > c.Lambda/2 {
		c.Mu = c.Lambda / 2
	}
	if c.Sigma0 <= 0 {
		c.Sigma0 = 0.3
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

// CMAES carries the strategy state: mean, step size, covariance and the
// two evolution paths. This is the numerically delicate engine; the
// covariance factorization is repaired whenever it loses positive
// definiteness.
type CMAES struct {
	space ParameterSpace
	eval  Evaluator
	cfg   CMAESConfig
	rng   *rand.Rand
	log   logger.Logger

	n     int
	mean  []float64 // normalized [0,1]^n
	sigma float64
	cov   *mat.SymDense
	pc    []float64 // covariance adaptation path
	ps    []float64 // step-size control path

	// Recombination weights and strategy constants, fixed per run.
	recomb []float64
	mueff  float64
	cc     float64
	cs     float64
	c1     float64
	cmu    float64
	damps  float64
	chiN   float64

	bestEver *Evaluated
}

// NewCMAES validates the inputs and builds the strategy with the standard
// constant schedule for the given dimension.
func NewCMAES(space ParameterSpace, eval Evaluator, cfg CMAESConfig, rng *rand.Rand) (*CMAES, error) {
	if eval == nil {
		return nil, fmt.Errorf("cmaes: evaluator is required")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("cmaes: random source is required")
	}
	n := len(space)
	cfg.setDefaults(n)

	c := &CMAES{
		space: space,
		eval:  eval,
		cfg:   cfg,
		rng:   rng,
		log:   logger.GetGlobalLogger().WithModule("optimizer.cmaes"),
		n:     n,
		sigma: cfg.Sigma0,
		cov:   identitySym(n),
		pc:    make([]float64, n),
		ps:    make([]float64, n),
	}

	c.recomb = make([]float64, cfg.Mu)
	var sum float64
	for i := 0; i < cfg.Mu; i++ {
		c.recomb[i] = math.Log(float64(cfg.Mu)+0.5) - math.Log(float64(i+1))
		sum += c.recomb[i]
	}
	var sumSq float64
	for i := range c.recomb {
		c.recomb[i] /= sum
		sumSq += c.recomb[i] * c.recomb[i]
	}
	c.mueff = 1 / sumSq

	nf := float64(n)
	c.cc = (4 + c.mueff/nf) / (nf + 4 + 2*c.mueff/nf)
	c.cs = (c.mueff + 2) / (nf + c.mueff + 5)
	c.c1 = 2 / ((nf+1.3)*(nf+1.3) + c.mueff)
	c.cmu = math.Min(1-c.c1, 2*(c.mueff-2+1/c.mueff)/((nf+2)*(nf+2)+c.mueff))
	c.damps = 1 + 2*math.Max(0, math.Sqrt((c.mueff-1)/(nf+1))-1) + c.cs
	c.chiN = math.Sqrt(nf) * (1 - 1/(4*nf) + 1/(21*nf*nf))

	c.mean = c.initialMean()
	return c, nil
}

// initialMean normalizes the first seed when provided, otherwise starts
// from the center of the cube.
func (c *CMAES) initialMean() []float64 {
	mean := make([]float64, c.n)
	if len(c.cfg.Seeds) > 0 {
		seed := c.space.Repair(c.cfg.Seeds[0])
		for i, spec := range c.space {
			if r := spec.Range(); r > 0 {
				mean[i] = (seed[spec.Name] - spec.Min) / r
			} else {
				mean[i] = 0.5
			}
		}
		return mean
	}
	for i := range mean {
		mean[i] = 0.5
	}
	return mean
}

// Run executes the sample-evaluate-update loop.
func (c *CMAES) Run(ctx context.Context) (*Result, error) {
	history := make([]GenerationStats, 0, c.cfg.Generations)

	var evaluated []*Evaluated
	for gen := 0; gen < c.cfg.Generations; gen++ {
		select {
		case <-ctx.Done():
			return c.finish(evaluated, history), ctx.Err()
		default:
		}

		chol := c.factorize()
		samples := make([][]float64, c.cfg.Lambda)
		population := make([]Individual, c.cfg.Lambda)
		for k := 0; k < c.cfg.Lambda; k++ {
			samples[k] = c.sample(chol)
			population[k] = c.denormalize(samples[k])
		}

		evaluated = evaluatePopulation(ctx, c.eval, population, evalOptions{
			algorithm:   "cmaes",
			weights:     c.cfg.Weights,
			constraints: c.cfg.Constraints,
			concurrency: c.cfg.Concurrency,
			metrics:     c.cfg.Metrics,
			log:         c.log,
		})

		order := make([]int, c.cfg.Lambda)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return evaluated[order[a]].Fitness > evaluated[order[b]].Fitness
		})

		if best := evaluated[order[0]]; c.bestEver == nil || best.Fitness > c.bestEver.Fitness {
			c.bestEver = cloneEvaluated(best)
		}

		c.update(samples, order, chol, gen)

		stats := c.generationStats(gen, evaluated, population)
		history = append(history, stats)
		safeProgress(c.cfg.OnProgress, stats, c.log)
		c.cfg.Metrics.RecordGeneration("cmaes", c.bestEver.Fitness)
	}

	return c.finish(evaluated, history), nil
}

// factorize returns a Cholesky factor of the covariance, repairing the
// matrix when accumulated error has broken positive definiteness.
func (c *CMAES) factorize() *mat.Cholesky {
	var chol mat.Cholesky
	if chol.Factorize(c.cov) {
		return &chol
	}
	c.log.Warn("covariance lost positive definiteness, repairing")
	jitter := 1e-10
	for attempt := 0; attempt < 8; attempt++ {
		repaired := mat.NewSymDense(c.n, nil)
		repaired.CopySym(c.cov)
		for i := 0; i < c.n; i++ {
			repaired.SetSym(i, i, repaired.At(i, i)+jitter)
		}
		if chol.Factorize(repaired) {
			c.cov = repaired
			return &chol
		}
		jitter *= 100
	}
	// Last resort: restart the covariance from the identity.
	c.cov = identitySym(c.n)
	chol.Factorize(c.cov)
	return &chol
}

// sample draws mean + sigma*L*z with z standard normal, clamped to the
// unit cube.
func (c *CMAES) sample(chol *mat.Cholesky) []float64 {
	var l mat.TriDense
	chol.LTo(&l)
	z := make([]float64, c.n)
	for i := range z {
		z[i] = c.rng.NormFloat64()
	}
	x := make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		var y float64
		for j := 0; j <= i; j++ {
			y += l.At(i, j) * z[j]
		}
		x[i] = clamp(c.mean[i]+c.sigma*y, 0, 1)
	}
	return x
}

func (c *CMAES) denormalize(x []float64) Individual {
	ind := make(Individual, c.n)
	for i, spec := range c.space {
		ind[spec.Name] = spec.Min + x[i]*spec.Range()
	}
	return c.space.Repair(ind)
}

// update applies weighted recombination, the two evolution-path updates,
// the rank-one plus rank-mu covariance update and step-size adaptation.
func (c *CMAES) update(samples [][]float64, order []int, chol *mat.Cholesky, gen int) {
	oldMean := c.mean
	newMean := make([]float64, c.n)
	for i := 0; i < c.cfg.Mu; i++ {
		w := c.recomb[i]
		for d := 0; d < c.n; d++ {
			newMean[d] += w * samples[order[i]][d]
		}
	}

	shift := make([]float64, c.n) // (newMean - oldMean) / sigma
	for d := 0; d < c.n; d++ {
		shift[d] = (newMean[d] - oldMean[d]) / c.sigma
	}

	// ps update needs C^{-1/2}*shift; the forward substitution on the
	// Cholesky factor whitens the shift with the right norm statistics.
	white := c.whiten(chol, shift)
	csCoeff := math.Sqrt(c.cs * (2 - c.cs) * c.mueff)
	for d := 0; d < c.n; d++ {
		c.ps[d] = (1-c.cs)*c.ps[d] + csCoeff*white[d]
	}

	psNorm := norm2(c.ps)
	expected := math.Sqrt(1 - math.Pow(1-c.cs, 2*float64(gen+1)))
	hsig := 0.0
	if psNorm/expected/c.chiN < 1.4+2/(float64(c.n)+1) {
		hsig = 1
	}

	ccCoeff := math.Sqrt(c.cc * (2 - c.cc) * c.mueff)
	for d := 0; d < c.n; d++ {
		c.pc[d] = (1-c.cc)*c.pc[d] + hsig*ccCoeff*shift[d]
	}

	// Covariance: decay, rank-one from pc, rank-mu from the best
	// offsprings' deviations. When hsig suppressed the pc update the lost
	// variance is compensated in the decay term.
	decay := 1 - c.c1 - c.cmu + c.c1*(1-hsig)*c.cc*(2-c.cc)
	next := mat.NewSymDense(c.n, nil)
	next.ScaleSym(decay, c.cov)

	pcVec := mat.NewVecDense(c.n, c.pc)
	next.SymRankOne(next, c.c1, pcVec)

	for i := 0; i < c.cfg.Mu; i++ {
		dev := make([]float64, c.n)
		for d := 0; d < c.n; d++ {
			dev[d] = (samples[order[i]][d] - oldMean[d]) / c.sigma
		}
		next.SymRankOne(next, c.cmu*c.recomb[i], mat.NewVecDense(c.n, dev))
	}
	c.cov = next
	c.mean = newMean

	// Step size: compare the ps path length to its expectation under
	// random selection.
	c.sigma *= math.Exp((c.cs / c.damps) * (psNorm/c.chiN - 1))
	if math.IsNaN(c.sigma) || math.IsInf(c.sigma, 0) || c.sigma <= 0 {
		c.log.Warn("step size degenerated, resetting", "sigma", c.sigma)
		c.sigma = c.cfg.Sigma0
	}
	if c.sigma > 1e6 {
		c.sigma = 1e6
	}
}

// whiten solves L*y = v by forward substitution.
func (c *CMAES) whiten(chol *mat.Cholesky, v []float64) []float64 {
	var l mat.TriDense
	chol.LTo(&l)
	y := make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		sum := v[i]
		for j := 0; j < i; j++ {
			sum -= l.At(i, j) * y[j]
		}
		diag := l.At(i, i)
		if diag == 0 {
			diag = 1e-12
		}
		y[i] = sum / diag
	}
	return y
}

func (c *CMAES) generationStats(gen int, evaluated []*Evaluated, population []Individual) GenerationStats {
	var sum float64
	worst := evaluated[0].Fitness
	best := evaluated[0]
	for _, e := range evaluated {
		sum += e.Fitness
		if e.Fitness < worst {
			worst = e.Fitness
		}
		if e.Fitness > best.Fitness {
			best = e
		}
	}
	return GenerationStats{
		Generation:   gen,
		Best:         cloneEvaluated(best),
		AvgFitness:   sum / float64(len(evaluated)),
		WorstFitness: worst,
		Diversity:    Diversity(c.space, population),
	}
}

func (c *CMAES) finish(evaluated []*Evaluated, history []GenerationStats) *Result {
	return &Result{
		Best:            c.bestEver,
		History:         history,
		FinalPopulation: evaluated,
	}
}

// Sigma exposes the current step size; tests assert it stays positive.
func (c *CMAES) Sigma() float64 {
	return c.sigma
}

func identitySym(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

func norm2(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
