package optimizer

import (
	"context"
	"fmt"
	"math/rand"

	"unicorn/internal/logger"
)

// IslandConfig configures the multi-deme wrapper around the GA: several
// isolated populations evolve independently and exchange their best
// individuals around a ring at a fixed interval.
type IslandConfig struct {
	Islands           int
	MigrationInterval int // generations between migrations
	MigrationSize     int // individuals passed to the next island

	GA GAConfig
}

func (c *IslandConfig) setDefaults() {
	if c.Islands <= 1 {
		c.Islands = 4
	}
	if c.MigrationInterval <= 0 {
		c.MigrationInterval = 10
	}
	if c.MigrationSize <= 0 {
		c.MigrationSize = 2
	}
	c.GA.setDefaults()
	if c.MigrationSize >= c.GA.PopulationSize {
		c.MigrationSize = c.GA.PopulationSize / 2
	}
}

// IslandModel runs one GA per island over the same parameter space and
// evaluator, with ring migration.
type IslandModel struct {
	space ParameterSpace
	eval  Evaluator
	cfg   IslandConfig
	log   logger.Logger

	islands []*GeneticAlgorithm
}

// NewIslandModel builds the demes; each island gets its own random stream
// derived from the master source so runs stay reproducible.
func NewIslandModel(space ParameterSpace, eval Evaluator, cfg IslandConfig, rng *rand.Rand) (*IslandModel, error) {
	if eval == nil {
		return nil, fmt.Errorf("island model: evaluator is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("island model: random source is required")
	}
	cfg.setDefaults()

	im := &IslandModel{
		space: space,
		eval:  eval,
		cfg:   cfg,
		log:   logger.GetGlobalLogger().WithModule("optimizer.island"),
	}
	for i := 0; i < cfg.Islands; i++ {
		gaCfg := cfg.GA
		// Progress and metrics are reported by the wrapper, not per deme.
		gaCfg.OnProgress = nil
		ga, err := NewGeneticAlgorithm(space, eval, gaCfg, rand.New(rand.NewSource(rng.Int63())))
		if err != nil {
			return nil, err
		}
		im.islands = append(im.islands, ga)
	}
	return im, nil
}

// Run evolves all islands generation by generation, migrating every
// MigrationInterval generations, and returns the best individual found
// across all demes.
func (im *IslandModel) Run(ctx context.Context) (*Result, error) {
	populations := make([][]Individual, len(im.islands))
	evaluated := make([][]*Evaluated, len(im.islands))
	for i, ga := range im.islands {
		populations[i] = ga.initPopulation()
	}

	generations := im.cfg.GA.Generations
	history := make([]GenerationStats, 0, generations)

	for gen := 0; gen < generations; gen++ {
		select {
		case <-ctx.Done():
			return im.finish(evaluated, history), ctx.Err()
		default:
		}

		for i, ga := range im.islands {
			evaluated[i] = ga.evaluate(ctx, populations[i])
			sortByFitnessDesc(evaluated[i])
			ga.updateBest(evaluated[i][0])
		}

		stats := im.generationStats(gen, evaluated, populations)
		history = append(history, stats)
		safeProgress(im.cfg.GA.OnProgress, stats, im.log)
		im.cfg.GA.Metrics.RecordGeneration("island", im.best().Fitness)

		if gen == generations-1 {
			break
		}
		for i, ga := range im.islands {
			populations[i] = ga.nextGeneration(evaluated[i], gen)
		}
		if (gen+1)%im.cfg.MigrationInterval == 0 {
			im.migrate(evaluated, populations)
		}
	}

	return im.finish(evaluated, history), nil
}

// migrate copies each island's best individuals over the worst slots of
// the next island's freshly bred population. Population sizes are
// preserved exactly.
func (im *IslandModel) migrate(evaluated [][]*Evaluated, populations [][]Individual) {
	n := len(im.islands)
	for i := 0; i < n; i++ {
		dst := (i + 1) % n
		size := len(populations[dst])
		for k := 0; k < im.cfg.MigrationSize && k < len(evaluated[i]); k++ {
			// evaluated[i] is fitness-sorted descending; overwrite the
			// tail of the destination population.
			populations[dst][size-1-k] = evaluated[i][k].Params.Clone()
		}
	}
	im.log.Debug("migration complete", "islands", n, "migrants", im.cfg.MigrationSize)
}

func (im *IslandModel) best() *Evaluated {
	var best *Evaluated
	for _, ga := range im.islands {
		if ga.bestEver != nil && (best == nil || ga.bestEver.Fitness > best.Fitness) {
			best = ga.bestEver
		}
	}
	return best
}

func (im *IslandModel) generationStats(gen int, evaluated [][]*Evaluated, populations [][]Individual) GenerationStats {
	var best *Evaluated
	var sum, worst float64
	var count int
	var all []Individual
	worst = evaluated[0][len(evaluated[0])-1].Fitness
	for i := range evaluated {
		for _, e := range evaluated[i] {
			sum += e.Fitness
			count++
			if best == nil || e.Fitness > best.Fitness {
				best = e
			}
			if e.Fitness < worst {
				worst = e.Fitness
			}
		}
		all = append(all, populations[i]...)
	}
	return GenerationStats{
		Generation:   gen,
		Best:         cloneEvaluated(best),
		AvgFitness:   sum / float64(count),
		WorstFitness: worst,
		Diversity:    Diversity(im.space, all),
	}
}

func (im *IslandModel) finish(evaluated [][]*Evaluated, history []GenerationStats) *Result {
	var final []*Evaluated
	for _, island := range evaluated {
		final = append(final, island...)
	}
	return &Result{
		Best:            im.best(),
		History:         history,
		FinalPopulation: final,
	}
}
