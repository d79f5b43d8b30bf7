package optimizer

import (
	"math/rand"
)

const (
	creditDecay    = 0.9
	minOperatorPct = 0.05
)

// OperatorSelector picks crossover/mutation operators by probability
// matching over exponentially decayed credit. Operators that produced
// fitter-than-parent offspring are drawn more often, but every operator
// keeps a minimum selection probability so the catalogue stays explored.
type OperatorSelector struct {
	rng         *rand.Rand
	crossCredit map[CrossoverOp]float64
	mutCredit   map[MutationOp]float64
}

// NewOperatorSelector starts every operator with equal credit.
func NewOperatorSelector(rng *rand.Rand) *OperatorSelector {
	s := &OperatorSelector{
		rng:         rng,
		crossCredit: make(map[CrossoverOp]float64, len(crossoverNames)),
		mutCredit:   make(map[MutationOp]float64, len(mutationNames)),
	}
	for op := range crossoverNames {
		s.crossCredit[op] = 1
	}
	for op := range mutationNames {
		s.mutCredit[op] = 1
	}
	return s
}

// Pick samples one crossover and one mutation operator.
func (s *OperatorSelector) Pick() (CrossoverOp, MutationOp) {
	cx := CrossoverUniform
	probs := s.CrossoverProbabilities()
	spin := s.rng.Float64()
	var cum float64
	for op := CrossoverOp(0); int(op) < len(crossoverNames); op++ {
		cum += probs[op]
		if spin <= cum {
			cx = op
			break
		}
	}

	mut := MutationGaussian
	mprobs := s.MutationProbabilities()
	spin = s.rng.Float64()
	cum = 0
	for op := MutationOp(0); int(op) < len(mutationNames); op++ {
		cum += mprobs[op]
		if spin <= cum {
			mut = op
			break
		}
	}
	return cx, mut
}

// Reward credits both operators of a pair with the offspring's fitness
// gain over its parents. Negative gains only decay existing credit.
func (s *OperatorSelector) Reward(cx CrossoverOp, mut MutationOp, gain float64) {
	s.crossCredit[cx] *= creditDecay
	s.mutCredit[mut] *= creditDecay
	if gain > 0 {
		s.crossCredit[cx] += gain
		s.mutCredit[mut] += gain
	}
}

// CrossoverProbabilities returns the normalized selection distribution
// with the minimum-probability floor applied.
func (s *OperatorSelector) CrossoverProbabilities() map[CrossoverOp]float64 {
	probs := make(map[CrossoverOp]float64, len(s.crossCredit))
	var total float64
	for _, c := range s.crossCredit {
		total += c
	}
	n := float64(len(s.crossCredit))
	for op, c := range s.crossCredit {
		p := minOperatorPct / n
		if total > 0 {
			p = minOperatorPct/n + (1-minOperatorPct)*c/total
		}
		probs[op] = p
	}
	return normalizeCrossoverProbs(probs)
}

// MutationProbabilities mirrors CrossoverProbabilities.
func (s *OperatorSelector) MutationProbabilities() map[MutationOp]float64 {
	probs := make(map[MutationOp]float64, len(s.mutCredit))
	var total float64
	for _, c := range s.mutCredit {
		total += c
	}
	n := float64(len(s.mutCredit))
	for op, c := range s.mutCredit {
		p := minOperatorPct / n
		if total > 0 {
			p = minOperatorPct/n + (1-minOperatorPct)*c/total
		}
		probs[op] = p
	}
	return normalizeMutationProbs(probs)
}

func normalizeCrossoverProbs(probs map[CrossoverOp]float64) map[CrossoverOp]float64 {
	var total float64
	for _, p := range probs {
		total += p
	}
	for op := range probs {
		probs[op] /= total
	}
	return probs
}

func normalizeMutationProbs(probs map[MutationOp]float64) map[MutationOp]float64 {
	var total float64
	for _, p := range probs {
		total += p
	}
	for op := range probs {
		probs[op] /= total
	}
	return probs
}
