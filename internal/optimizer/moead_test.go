package optimizer

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAggregationMethodRoundTrip(t *testing.T) {
	for m, name := range aggregationNames {
		parsed, err := ParseAggregationMethod(name)
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseAggregationMethod("epsilon_constraint")
	assert.Error(t, err)
}

func TestSimplexWeightsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(101))

	for _, k := range []int{2, 3} {
		for _, count := range []int{10, 50, 101} {
			weights := simplexWeights(k, count, rng)
			require.Len(t, weights, count, "k=%d count=%d", k, count)
			for _, w := range weights {
				require.Len(t, w, k)
				var sum float64
				for _, v := range w {
					assert.GreaterOrEqual(t, v, 0.0)
					sum += v
				}
				assert.InDelta(t, 1.0, sum, 1e-9, "weight vectors live on the simplex")
			}
		}
	}
}

func TestLatticeSize(t *testing.T) {
	// C(h+k-1, k-1): h=4,k=2 -> 5; h=3,k=3 -> 10.
	assert.Equal(t, 5, latticeSize(4, 2))
	assert.Equal(t, 10, latticeSize(3, 3))
	assert.Equal(t, len(latticePoints(3, 3)), latticeSize(3, 3))
}

func TestNearestNeighborsIncludeSelf(t *testing.T) {
	rng := rand.New(rand.NewSource(103))
	weights := simplexWeights(2, 20, rng)
	neighbors := nearestNeighbors(weights, 5)

	require.Len(t, neighbors, 20)
	for i, hood := range neighbors {
		require.Len(t, hood, 5)
		assert.Equal(t, i, hood[0], "a vector is its own nearest neighbor")
	}
}

func TestNewMOEADValidation(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0)
	rng := rand.New(rand.NewSource(1))

	_, err := NewMOEAD(space, eval, MOEADConfig{Objectives: []Objective{ObjectiveReturn}}, rng)
	assert.Error(t, err, "needs at least two objectives")

	m, err := NewMOEAD(space, eval, MOEADConfig{
		Objectives: []Objective{ObjectiveReturn, ObjectiveDrawdown},
	}, rng)
	require.NoError(t, err)
	assert.Equal(t, 50, m.cfg.Subproblems)
	assert.Len(t, m.weights, 50)
	assert.Len(t, m.neighbors, 50)
}

func TestMOEADAggregationSmallerIsBetter(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0)

	for _, method := range []AggregationMethod{AggWeightedSum, AggTchebycheff, AggPBI} {
		t.Run(method.String(), func(t *testing.T) {
			m, err := NewMOEAD(space, eval, MOEADConfig{
				Objectives:  []Objective{ObjectiveReturn, ObjectiveDrawdown},
				Aggregation: method,
			}, rand.New(rand.NewSource(107)))
			require.NoError(t, err)
			m.ideal = []float64{10, 10}

			weight := []float64{0.5, 0.5}
			better := m.aggregate([]float64{9, 9}, weight)
			worse := m.aggregate([]float64{1, 1}, weight)
			assert.Less(t, better, worse,
				"a vector closer to the ideal must aggregate smaller")
		})
	}
}

func TestMOEADFrontIsMutuallyNonDominated(t *testing.T) {
	space := ParameterSpace{
		{Name: "x", Min: 0, Max: 10, Step: 0.1, Type: TypeFloat, Default: 5},
	}
	eval := EvaluatorFunc(func(ctx context.Context, params Individual) (*EvaluationResult, error) {
		x := params["x"]
		return &EvaluationResult{
			AvgReturn:   x,
			MaxDrawdown: (10 - x) * (10 - x) / 10,
		}, nil
	})

	m, err := NewMOEAD(space, eval, MOEADConfig{
		Subproblems: 20,
		Generations: 15,
		Objectives:  []Objective{ObjectiveReturn, ObjectiveDrawdown},
	}, rand.New(rand.NewSource(109)))
	require.NoError(t, err)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.ParetoFront)
	require.Len(t, result.FinalPopulation, 20, "one solution per weight vector")

	for i, a := range result.ParetoFront {
		for j, b := range result.ParetoFront {
			if i == j {
				continue
			}
			assert.False(t, Dominates(a.Objectives, b.Objectives))
		}
	}
}

func TestMOEADIdealPointOnlyImproves(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0.02)

	m, err := NewMOEAD(space, eval, MOEADConfig{
		Subproblems: 12,
		Generations: 5,
		Objectives:  []Objective{ObjectiveReturn, ObjectiveDrawdown},
	}, rand.New(rand.NewSource(113)))
	require.NoError(t, err)

	m.updateIdeal([]float64{1, 2})
	assert.Equal(t, []float64{1, 2}, m.ideal)
	m.updateIdeal([]float64{0, 5})
	assert.Equal(t, []float64{1, 5}, m.ideal, "per-objective maximum, never a regression")

	_, err = m.Run(context.Background())
	require.NoError(t, err)
	for _, v := range m.ideal {
		assert.False(t, math.IsInf(v, -1), "the ideal point was lifted by the run")
	}
}

func TestMOEADExplicitOperatorsSurviveDefaults(t *testing.T) {
	cx := CrossoverUniform
	mut := MutationGaussian
	cfg := MOEADConfig{Crossover: &cx, Mutation: &mut}
	cfg.setDefaults()
	assert.Equal(t, CrossoverUniform, *cfg.Crossover)
	assert.Equal(t, MutationGaussian, *cfg.Mutation)

	var unset MOEADConfig
	unset.setDefaults()
	assert.Equal(t, CrossoverSBX, *unset.Crossover)
	assert.Equal(t, MutationPolynomial, *unset.Mutation)
}
