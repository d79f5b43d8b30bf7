package optimizer

import (
	"fmt"
	"math"
	"math/rand"
)

// CrossoverOp names one crossover operator. The set is closed so that
// dispatch stays exhaustive.
type CrossoverOp int

const (
	CrossoverUniform CrossoverOp = iota
	CrossoverSinglePoint
	CrossoverTwoPoint
	CrossoverSBX
	CrossoverArithmetic
	CrossoverBlend
)

const (
	sbxEta          = 20.0
	arithmeticAlpha = 0.5
	blendAlpha      = 0.5
)

var crossoverNames = map[CrossoverOp]string{
	CrossoverUniform:     "uniform",
	CrossoverSinglePoint: "single_point",
	CrossoverTwoPoint:    "two_point",
	CrossoverSBX:         "sbx",
	CrossoverArithmetic:  "arithmetic",
	CrossoverBlend:       "blend",
}

func (op CrossoverOp) String() string {
	if name, ok := crossoverNames[op]; ok {
		return name
	}
	return fmt.Sprintf("crossover(%d)", int(op))
}

// ParseCrossoverOp maps a config name back to its operator.
func ParseCrossoverOp(name string) (CrossoverOp, error) {
	for op, n := range crossoverNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown crossover operator %q", name)
}

// Crossover produces two children from two parents. Parents are read-only;
// children are always repaired before they are returned.
func Crossover(op CrossoverOp, space ParameterSpace, p1, p2 Individual, rng *rand.Rand) (Individual, Individual) {
	var c1, c2 Individual
	switch op {
	case CrossoverUniform:
		c1, c2 = uniformCrossover(space, p1, p2, rng)
	case CrossoverSinglePoint:
		c1, c2 = pointCrossover(space, p1, p2, rng, 1)
	case CrossoverTwoPoint:
		c1, c2 = pointCrossover(space, p1, p2, rng, 2)
	case CrossoverSBX:
		c1, c2 = sbxCrossover(space, p1, p2, rng)
	case CrossoverArithmetic:
		c1, c2 = arithmeticCrossover(space, p1, p2)
	case CrossoverBlend:
		c1, c2 = blendCrossover(space, p1, p2, rng)
	default:
		c1, c2 = p1.Clone(), p2.Clone()
	}
	return space.Repair(c1), space.Repair(c2)
}

// uniformCrossover flips a coin per parameter.
func uniformCrossover(space ParameterSpace, p1, p2 Individual, rng *rand.Rand) (Individual, Individual) {
	c1 := make(Individual, len(space))
	c2 := make(Individual, len(space))
	for _, spec := range space {
		if rng.Float64() < 0.5 {
			c1[spec.Name] = p1[spec.Name]
			c2[spec.Name] = p2[spec.Name]
		} else {
			c1[spec.Name] = p2[spec.Name]
			c2[spec.Name] = p1[spec.Name]
		}
	}
	return c1, c2
}

// pointCrossover swaps a contiguous range of the ordered parameter list.
// points is 1 for single-point and 2 for two-point.
func pointCrossover(space ParameterSpace, p1, p2 Individual, rng *rand.Rand, points int) (Individual, Individual) {
	n := len(space)
	c1 := p1.Clone()
	c2 := p2.Clone()
	if n < 2 {
		return c1, c2
	}
	lo := rng.Intn(n)
	hi := n
	if points == 2 {
		hi = lo + 1 + rng.Intn(n-lo)
	}
	for i := lo; i < hi; i++ {
		name := space[i].Name
		c1[name], c2[name] = p2[name], p1[name]
	}
	return c1, c2
}

// sbxCrossover is simulated binary crossover with distribution index eta.
// The spread factor beta is drawn so children cluster near the parents for
// large eta. A coinciding parent pair is copied through unchanged.
func sbxCrossover(space ParameterSpace, p1, p2 Individual, rng *rand.Rand) (Individual, Individual) {
	c1 := make(Individual, len(space))
	c2 := make(Individual, len(space))
	for _, spec := range space {
		v1, v2 := p1[spec.Name], p2[spec.Name]
		diff := math.Abs(v2 - v1)
		if diff < 1e-12 {
			c1[spec.Name] = v1
			c2[spec.Name] = v2
			continue
		}
		u := rng.Float64()
		var beta float64
		if u <= 0.5 {
			beta = math.Pow(2*u, 1/(sbxEta+1))
		} else {
			beta = math.Pow(1/(2*(1-u)), 1/(sbxEta+1))
		}
		mean := 0.5 * (v1 + v2)
		spread := 0.5 * beta * diff
		c1[spec.Name] = mean - spread
		c2[spec.Name] = mean + spread
	}
	return c1, c2
}

// arithmeticCrossover blends parents as a fixed convex combination.
func arithmeticCrossover(space ParameterSpace, p1, p2 Individual) (Individual, Individual) {
	c1 := make(Individual, len(space))
	c2 := make(Individual, len(space))
	for _, spec := range space {
		v1, v2 := p1[spec.Name], p2[spec.Name]
		c1[spec.Name] = arithmeticAlpha*v1 + (1-arithmeticAlpha)*v2
		c2[spec.Name] = arithmeticAlpha*v2 + (1-arithmeticAlpha)*v1
	}
	return c1, c2
}

// blendCrossover (BLX-alpha) samples uniformly from the parents' range
// expanded by alpha on both sides. Zero-range pairs are treated as fixed.
func blendCrossover(space ParameterSpace, p1, p2 Individual, rng *rand.Rand) (Individual, Individual) {
	c1 := make(Individual, len(space))
	c2 := make(Individual, len(space))
	for _, spec := range space {
		lo := math.Min(p1[spec.Name], p2[spec.Name])
		hi := math.Max(p1[spec.Name], p2[spec.Name])
		span := hi - lo
		if span < 1e-12 {
			c1[spec.Name] = lo
			c2[spec.Name] = lo
			continue
		}
		lo -= blendAlpha * span
		hi += blendAlpha * span
		c1[spec.Name] = lo + rng.Float64()*(hi-lo)
		c2[spec.Name] = lo + rng.Float64()*(hi-lo)
	}
	return c1, c2
}
