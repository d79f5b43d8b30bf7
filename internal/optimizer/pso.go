package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"unicorn/internal/logger"
)

// PSOConfig configures the particle swarm optimizer.
type PSOConfig struct {
	SwarmSize  int
	Iterations int

	// Inertia: when WMax > WMin the weight decays linearly across the
	// iteration budget (exploration to exploitation); otherwise
	// InertiaWeight is used as a constant.
	InertiaWeight float64
	WMax          float64
	WMin          float64

	Cognitive float64 // c1, pull toward the personal best
	Social    float64 // c2, pull toward the global best

	// VMaxFraction clamps velocity to this fraction of parameter range.
	VMaxFraction float64

	Weights     Weights
	Constraints []Constraint
	Seeds       []Individual
	Concurrency int

	OnProgress ProgressFunc
	Metrics    MetricsSink
}

func (c *PSOConfig) setDefaults() {
	if c.SwarmSize <= 0 {
		c.SwarmSize = 30
	}
	if c.Iterations <= 0 {
		c.Iterations = 100
	}
	if c.InertiaWeight <= 0 {
		c.InertiaWeight = 0.7
	}
	if c.Cognitive <= 0 {
		c.Cognitive = 1.5
	}
	if c.Social <= 0 {
		c.Social = 1.5
	}
	if c.VMaxFraction <= 0 {
		c.VMaxFraction = 0.2
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

// particle holds the per-particle state: position, velocity and the
// personal best seen so far.
type particle struct {
	position Individual
	velocity map[string]float64
	bestPos  Individual
	bestFit  float64
	bestEval *Evaluated
}

// ParticleSwarm moves a swarm of candidate vectors through the parameter
// space, sharing one global best.
type ParticleSwarm struct {
	space ParameterSpace
	eval  Evaluator
	cfg   PSOConfig
	rng   *rand.Rand
	log   logger.Logger

	particles []*particle
	gbest     *Evaluated
}

// NewParticleSwarm validates the inputs and builds the optimizer.
func NewParticleSwarm(space ParameterSpace, eval Evaluator, cfg PSOConfig, rng *rand.Rand) (*ParticleSwarm, error) {
	if eval == nil {
		return nil, fmt.Errorf("particle swarm: evaluator is required")
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("particle swarm: random source is required")
	}
	cfg.setDefaults()
	return &ParticleSwarm{
		space: space,
		eval:  eval,
		cfg:   cfg,
		rng:   rng,
		log:   logger.GetGlobalLogger().WithModule("optimizer.pso"),
	}, nil
}

// Run executes the iteration loop.
func (pso *ParticleSwarm) Run(ctx context.Context) (*Result, error) {
	pso.initSwarm()
	history := make([]GenerationStats, 0, pso.cfg.Iterations)

	var evaluated []*Evaluated
	for iter := 0; iter < pso.cfg.Iterations; iter++ {
		select {
		case <-ctx.Done():
			return pso.finish(evaluated, history), ctx.Err()
		default:
		}

		positions := make([]Individual, len(pso.particles))
		for i, p := range pso.particles {
			positions[i] = p.position
		}
		evaluated = evaluatePopulation(ctx, pso.eval, positions, evalOptions{
			algorithm:   "pso",
			weights:     pso.cfg.Weights,
			constraints: pso.cfg.Constraints,
			concurrency: pso.cfg.Concurrency,
			metrics:     pso.cfg.Metrics,
			log:         pso.log,
		})

		// Personal and global bests update only on strict improvement.
		for i, p := range pso.particles {
			if evaluated[i].Fitness > p.bestFit || p.bestEval == nil {
				p.bestFit = evaluated[i].Fitness
				p.bestPos = evaluated[i].Params.Clone()
				p.bestEval = cloneEvaluated(evaluated[i])
			}
			if pso.gbest == nil || evaluated[i].Fitness > pso.gbest.Fitness {
				pso.gbest = cloneEvaluated(evaluated[i])
			}
		}

		stats := pso.generationStats(iter, evaluated, positions)
		history = append(history, stats)
		safeProgress(pso.cfg.OnProgress, stats, pso.log)
		pso.cfg.Metrics.RecordGeneration("pso", pso.gbest.Fitness)

		if iter < pso.cfg.Iterations-1 {
			pso.moveParticles(iter)
		}
	}

	return pso.finish(evaluated, history), nil
}

func (pso *ParticleSwarm) initSwarm() {
	pso.particles = make([]*particle, pso.cfg.SwarmSize)
	for i := range pso.particles {
		var pos Individual
		if i < len(pso.cfg.Seeds) {
			pos = pso.space.Repair(pso.cfg.Seeds[i])
		} else {
			pos = pso.space.Random(pso.rng)
		}
		velocity := make(map[string]float64, len(pso.space))
		for _, spec := range pso.space {
			vmax := pso.cfg.VMaxFraction * spec.Range()
			velocity[spec.Name] = (pso.rng.Float64()*2 - 1) * vmax
		}
		pso.particles[i] = &particle{
			position: pos,
			velocity: velocity,
			bestFit:  math.Inf(-1),
		}
	}
}

// inertia returns the weight for one iteration, decaying linearly from
// WMax to WMin when a decay schedule is configured.
func (pso *ParticleSwarm) inertia(iter int) float64 {
	if pso.cfg.WMax > pso.cfg.WMin && pso.cfg.WMax > 0 {
		frac := float64(iter) / float64(pso.cfg.Iterations)
		return pso.cfg.WMax - (pso.cfg.WMax-pso.cfg.WMin)*frac
	}
	return pso.cfg.InertiaWeight
}

// moveParticles applies the velocity and position update with clamping
// and repair.
func (pso *ParticleSwarm) moveParticles(iter int) {
	w := pso.inertia(iter)
	for _, p := range pso.particles {
		next := p.position.Clone()
		for _, spec := range pso.space {
			name := spec.Name
			r1, r2 := pso.rng.Float64(), pso.rng.Float64()
			v := w*p.velocity[name] +
				pso.cfg.Cognitive*r1*(p.bestPos[name]-p.position[name]) +
				pso.cfg.Social*r2*(pso.gbest.Params[name]-p.position[name])
			vmax := pso.cfg.VMaxFraction * spec.Range()
			v = clamp(v, -vmax, vmax)
			p.velocity[name] = v
			next[name] = p.position[name] + v
		}
		p.position = pso.space.Repair(next)
	}
}

func (pso *ParticleSwarm) generationStats(iter int, evaluated []*Evaluated, positions []Individual) GenerationStats {
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
		Generation:   iter,
		Best:         cloneEvaluated(best),
		AvgFitness:   sum / float64(len(evaluated)),
		WorstFitness: worst,
		Diversity:    Diversity(pso.space, positions),
	}
}

func (pso *ParticleSwarm) finish(evaluated []*Evaluated, history []GenerationStats) *Result {
	return &Result{
		Best:            pso.gbest,
		History:         history,
		FinalPopulation: evaluated,
	}
}
