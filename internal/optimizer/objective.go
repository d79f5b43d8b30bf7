package optimizer

import (
	"fmt"
	"math"
)

// Objective names one scalar score derived from an EvaluationResult.
// Every objective is oriented so that larger is better; drawdown and
// volatility are negated.
type Objective int

const (
	ObjectiveReturn Objective = iota
	ObjectiveDrawdown
	ObjectiveWinRate
	ObjectiveProfitFactor
	ObjectiveSharpe
	ObjectiveVolatility
	ObjectiveSampleSize
)

var objectiveNames = map[Objective]string{
	ObjectiveReturn:       "return",
	ObjectiveDrawdown:     "drawdown",
	ObjectiveWinRate:      "win_rate",
	ObjectiveProfitFactor: "profit_factor",
	ObjectiveSharpe:       "sharpe",
	ObjectiveVolatility:   "volatility",
	ObjectiveSampleSize:   "sample_size",
}

func (o Objective) String() string {
	if name, ok := objectiveNames[o]; ok {
		return name
	}
	return fmt.Sprintf("objective(%d)", int(o))
}

// ParseObjective maps a config name back to its Objective.
func ParseObjective(name string) (Objective, error) {
	for o, n := range objectiveNames {
		if n == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown objective %q", name)
}

// Score evaluates one objective against a result. A nil result scores 0,
// matching the missing-fields-default-to-zero contract.
func (o Objective) Score(r *EvaluationResult) float64 {
	if r == nil {
		return 0
	}
	switch o {
	case ObjectiveReturn:
		return r.AvgReturn
	case ObjectiveDrawdown:
		return -r.MaxDrawdown
	case ObjectiveWinRate:
		return r.WinRate
	case ObjectiveProfitFactor:
		return r.ProfitFactor
	case ObjectiveSharpe:
		return r.SharpeRatio
	case ObjectiveVolatility:
		return -r.Volatility
	case ObjectiveSampleSize:
		// Rewards statistical significance without unbounded growth.
		return math.Log(float64(r.Trades)+1) / 10
	default:
		return 0
	}
}

// Weights maps objectives to their weighted-sum fitness contribution.
type Weights map[Objective]float64

// DefaultWeights is the production weighting of the scalar fitness.
func DefaultWeights() Weights {
	return Weights{
		ObjectiveReturn:       0.30,
		ObjectiveDrawdown:     0.15,
		ObjectiveWinRate:      0.15,
		ObjectiveProfitFactor: 0.20,
		ObjectiveSharpe:       0.15,
		ObjectiveSampleSize:   0.05,
	}
}

// WeightedFitness folds a result into one maximize-is-better scalar.
func WeightedFitness(r *EvaluationResult, weights Weights) float64 {
	var fitness float64
	for o, w := range weights {
		fitness += w * o.Score(r)
	}
	return fitness
}

// ObjectiveVector extracts the multi-objective score vector in the given
// objective order.
func ObjectiveVector(r *EvaluationResult, objectives []Objective) []float64 {
	vec := make([]float64, len(objectives))
	for i, o := range objectives {
		vec[i] = o.Score(r)
	}
	return vec
}
