package optimizer

import (
	"fmt"
	"math"
	"math/rand"
)

// MutationOp names one mutation operator.
type MutationOp int

const (
	MutationGaussian MutationOp = iota
	MutationPolynomial
	MutationCauchy
	MutationNonUniform
	MutationBoundary
)

const (
	polynomialEta   = 20.0
	cauchyScale     = 0.1
	nonUniformPower = 2.0
	gaussianSigma   = 0.2
)

var mutationNames = map[MutationOp]string{
	MutationGaussian:   "gaussian",
	MutationPolynomial: "polynomial",
	MutationCauchy:     "cauchy",
	MutationNonUniform: "non_uniform",
	MutationBoundary:   "boundary",
}

func (op MutationOp) String() string {
	if name, ok := mutationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("mutation(%d)", int(op))
}

// ParseMutationOp maps a config name back to its operator.
func ParseMutationOp(name string) (MutationOp, error) {
	for op, n := range mutationNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown mutation operator %q", name)
}

// Mutate perturbs each parameter with probability rate and returns a
// repaired copy. gen/maxGen drive the generation-dependent operators:
// the gaussian rate decays over the budget, non-uniform perturbations
// shrink toward the end of the run.
func Mutate(op MutationOp, space ParameterSpace, ind Individual, rate float64, gen, maxGen int, rng *rand.Rand) Individual {
	out := ind.Clone()
	effRate := rate
	if op == MutationGaussian && maxGen > 0 {
		// Favors exploration early and exploitation late.
		effRate = rate * (1 - 0.7*float64(gen)/float64(maxGen))
	}
	for _, spec := range space {
		if rng.Float64() >= effRate {
			continue
		}
		r := spec.Range()
		if r == 0 {
			continue
		}
		v := out[spec.Name]
		switch op {
		case MutationGaussian:
			v += (rng.Float64()*2 - 1) * gaussianSigma * r
		case MutationPolynomial:
			v += polynomialDelta(v, spec, rng) * r
		case MutationCauchy:
			// Heavy-tailed draw: occasional large jumps.
			v += cauchyScale * r * math.Tan(math.Pi*(rng.Float64()-0.5))
		case MutationNonUniform:
			v += nonUniformDelta(v, spec, gen, maxGen, rng)
		case MutationBoundary:
			if rng.Float64() < 0.5 {
				v = spec.Min
			} else {
				v = spec.Max
			}
		}
		out[spec.Name] = v
	}
	return space.Repair(out)
}

// polynomialDelta computes the bounded polynomial-mutation quantile: the
// perturbation is asymmetric, driven by the distance to the nearer bound.
func polynomialDelta(v float64, spec ParameterSpec, rng *rand.Rand) float64 {
	r := spec.Range()
	d1 := (v - spec.Min) / r
	d2 := (spec.Max - v) / r
	u := rng.Float64()
	exp := 1 / (polynomialEta + 1)
	if u <= 0.5 {
		q := 2*u + (1-2*u)*math.Pow(1-d1, polynomialEta+1)
		return math.Pow(q, exp) - 1
	}
	q := 2*(1-u) + 2*(u-0.5)*math.Pow(1-d2, polynomialEta+1)
	return 1 - math.Pow(q, exp)
}

// nonUniformDelta shrinks as a power function of the remaining-generation
// fraction, moving toward a randomly chosen bound.
func nonUniformDelta(v float64, spec ParameterSpec, gen, maxGen int, rng *rand.Rand) float64 {
	frac := 0.0
	if maxGen > 0 {
		frac = float64(gen) / float64(maxGen)
	}
	shrink := 1 - math.Pow(rng.Float64(), math.Pow(1-frac, nonUniformPower))
	if rng.Float64() < 0.5 {
		return (spec.Max - v) * shrink
	}
	return -(v - spec.Min) * shrink
}
