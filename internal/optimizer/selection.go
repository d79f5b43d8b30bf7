package optimizer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SelectionOp names one parent-selection operator.
type SelectionOp int

const (
	SelectionTournament SelectionOp = iota
	SelectionRoulette
	SelectionRank
	SelectionSUS
	SelectionBoltzmann
)

var selectionNames = map[SelectionOp]string{
	SelectionTournament: "tournament",
	SelectionRoulette:   "roulette",
	SelectionRank:       "rank",
	SelectionSUS:        "sus",
	SelectionBoltzmann:  "boltzmann",
}

func (op SelectionOp) String() string {
	if name, ok := selectionNames[op]; ok {
		return name
	}
	return fmt.Sprintf("selection(%d)", int(op))
}

// ParseSelectionOp maps a config name back to its operator.
func ParseSelectionOp(name string) (SelectionOp, error) {
	for op, n := range selectionNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown selection operator %q", name)
}

// SelectionConfig carries the operator-specific knobs.
type SelectionConfig struct {
	TournamentSize int     // tournament only, default 3
	Temperature    float64 // boltzmann only, external annealing schedule
}

// Select returns one parent from an evaluated population. The returned
// pointer aliases the population; variation operators never write through
// it, so no defensive copy is taken here.
func Select(op SelectionOp, population []*Evaluated, cfg SelectionConfig, rng *rand.Rand) *Evaluated {
	if len(population) == 0 {
		return nil
	}
	switch op {
	case SelectionTournament:
		return tournamentSelect(population, cfg.TournamentSize, rng)
	case SelectionRoulette:
		return wheelSelect(population, rouletteWeights(population), rng)
	case SelectionRank:
		return wheelSelect(population, rankWeights(population), rng)
	case SelectionSUS:
		// SUS degenerates to roulette for a single pick; use SelectMany
		// for the low-variance evenly spaced pointers.
		return wheelSelect(population, rouletteWeights(population), rng)
	case SelectionBoltzmann:
		return wheelSelect(population, boltzmannWeights(population, cfg.Temperature), rng)
	default:
		return population[rng.Intn(len(population))]
	}
}

// SelectMany returns count parents. For SUS this is a single evenly
// spaced pointer set over the cumulative wheel, guaranteeing low
// selection variance; other operators just repeat Select.
func SelectMany(op SelectionOp, population []*Evaluated, count int, cfg SelectionConfig, rng *rand.Rand) []*Evaluated {
	if op == SelectionSUS {
		return susSelect(population, count, rng)
	}
	out := make([]*Evaluated, count)
	for i := range out {
		out[i] = Select(op, population, cfg, rng)
	}
	return out
}

func tournamentSelect(population []*Evaluated, size int, rng *rand.Rand) *Evaluated {
	if size < 2 {
		size = 3
	}
	best := population[rng.Intn(len(population))]
	for i := 1; i < size; i++ {
		candidate := population[rng.Intn(len(population))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// rouletteWeights shifts all fitness values non-negative so probability
// stays proportional to (fitness + offset).
func rouletteWeights(population []*Evaluated) []float64 {
	minFit := math.Inf(1)
	for _, e := range population {
		if e.Fitness < minFit {
			minFit = e.Fitness
		}
	}
	offset := 0.0
	if minFit < 0 {
		offset = -minFit
	}
	weights := make([]float64, len(population))
	for i, e := range population {
		weights[i] = e.Fitness + offset + 1e-9
	}
	return weights
}

// rankWeights assigns probability proportional to rank position after an
// ascending fitness sort, damping the pull of outlier fitness values.
func rankWeights(population []*Evaluated) []float64 {
	order := make([]int, len(population))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return population[order[a]].Fitness < population[order[b]].Fitness
	})
	weights := make([]float64, len(population))
	for rank, idx := range order {
		weights[idx] = float64(rank + 1)
	}
	return weights
}

// boltzmannWeights uses exp(fitness/T). Fitness is shifted by the maximum
// before exponentiation to avoid overflow.
func boltzmannWeights(population []*Evaluated, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	maxFit := math.Inf(-1)
	for _, e := range population {
		if e.Fitness > maxFit {
			maxFit = e.Fitness
		}
	}
	weights := make([]float64, len(population))
	for i, e := range population {
		weights[i] = math.Exp((e.Fitness - maxFit) / temperature)
	}
	return weights
}

func wheelSelect(population []*Evaluated, weights []float64, rng *rand.Rand) *Evaluated {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return population[rng.Intn(len(population))]
	}
	spin := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if spin <= cum {
			return population[i]
		}
	}
	return population[len(population)-1]
}

// susSelect spreads count evenly spaced pointers over the cumulative
// fitness wheel, yielding exactly count selections from one random phase.
func susSelect(population []*Evaluated, count int, rng *rand.Rand) []*Evaluated {
	weights := rouletteWeights(population)
	var total float64
	for _, w := range weights {
		total += w
	}
	out := make([]*Evaluated, 0, count)
	if total <= 0 || count == 0 {
		for i := 0; i < count; i++ {
			out = append(out, population[rng.Intn(len(population))])
		}
		return out
	}
	stride := total / float64(count)
	pointer := rng.Float64() * stride
	var cum float64
	idx := 0
	for i := 0; i < count; i++ {
		target := pointer + float64(i)*stride
		for cum+weights[idx] < target && idx < len(population)-1 {
			cum += weights[idx]
			idx++
		}
		out = append(out, population[idx])
	}
	return out
}
