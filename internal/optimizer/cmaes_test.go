package optimizer

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cmaesSpace() ParameterSpace {
	return ParameterSpace{
		{Name: "a", Min: 0, Max: 10, Step: 0.01, Type: TypeFloat, Default: 5},
		{Name: "b", Min: -5, Max: 5, Step: 0.01, Type: TypeFloat, Default: 0},
		{Name: "c", Min: 0, Max: 1, Step: 0.001, Type: TypeFloat, Default: 0.5},
	}
}

func TestNewCMAESDefaults(t *testing.T) {
	space := cmaesSpace()
	eval := sphereEvaluator(space, 0)

	c, err := NewCMAES(space, eval, CMAESConfig{}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, c.cfg.Lambda, 4)
	assert.Equal(t, c.cfg.Lambda/2, c.cfg.Mu)
	assert.Equal(t, 0.3, c.sigma)

	// Recombination weights are positive, descending and sum to one.
	var sum float64
	for i, w := range c.recomb {
		assert.Greater(t, w, 0.0)
		if i > 0 {
			assert.Less(t, w, c.recomb[i-1])
		}
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, c.mueff, 1.0)
}

func TestCMAESImprovesOnQuadratic(t *testing.T) {
	space := cmaesSpace()
	eval := EvaluatorFunc(func(ctx context.Context, params Individual) (*EvaluationResult, error) {
		da := params["a"] - 7
		db := params["b"] - 2
		dc := params["c"] - 0.3
		return &EvaluationResult{AvgReturn: -(da*da + db*db + dc*dc)}, nil
	})

	c, err := NewCMAES(space, eval, CMAESConfig{
		Generations: 40,
		Weights:     Weights{ObjectiveReturn: 1},
	}, rand.New(rand.NewSource(71)))
	require.NoError(t, err)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Best)
	require.Len(t, result.History, 40)

	first := result.History[0].Best.Fitness
	assert.Greater(t, result.Best.Fitness, first, "the search must improve on the initial sample")
	assert.InDelta(t, 7, result.Best.Params["a"], 1.5)
	assert.InDelta(t, 2, result.Best.Params["b"], 1.5)
}

func TestCMAESSigmaStaysPositive(t *testing.T) {
	space := cmaesSpace()
	// A flat landscape gives the step-size control nothing to work with;
	// sigma must survive it without degenerating.
	eval := EvaluatorFunc(func(ctx context.Context, params Individual) (*EvaluationResult, error) {
		return &EvaluationResult{AvgReturn: 1}, nil
	})

	c, err := NewCMAES(space, eval, CMAESConfig{
		Generations: 50,
		Weights:     Weights{ObjectiveReturn: 1},
	}, rand.New(rand.NewSource(73)))
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, c.Sigma(), 0.0)
}

func TestCMAESFactorizeRepairsBrokenCovariance(t *testing.T) {
	space := cmaesSpace()
	eval := sphereEvaluator(space, 0.5)

	c, err := NewCMAES(space, eval, CMAESConfig{}, rand.New(rand.NewSource(79)))
	require.NoError(t, err)

	// Deliberately break positive definiteness.
	c.cov.SetSym(0, 0, -1)
	assert.NotPanics(t, func() {
		chol := c.factorize()
		assert.NotNil(t, chol)
	})
}

func TestCMAESSeedBecomesInitialMean(t *testing.T) {
	space := cmaesSpace()
	eval := sphereEvaluator(space, 0.5)

	c, err := NewCMAES(space, eval, CMAESConfig{
		Seeds: []Individual{{"a": 10, "b": -5, "c": 0}},
	}, rand.New(rand.NewSource(83)))
	require.NoError(t, err)

	assert.InDelta(t, 1.0, c.mean[0], 1e-9, "a=10 normalizes to the top of the cube")
	assert.InDelta(t, 0.0, c.mean[1], 1e-9, "b=-5 normalizes to the bottom")
	assert.InDelta(t, 0.0, c.mean[2], 1e-9)

	unseeded, err := NewCMAES(space, eval, CMAESConfig{}, rand.New(rand.NewSource(89)))
	require.NoError(t, err)
	for _, m := range unseeded.mean {
		assert.Equal(t, 0.5, m)
	}
}

func TestCMAESSamplesStayInSpace(t *testing.T) {
	space := cmaesSpace()
	eval := sphereEvaluator(space, 0.5)

	c, err := NewCMAES(space, eval, CMAESConfig{}, rand.New(rand.NewSource(97)))
	require.NoError(t, err)

	chol := c.factorize()
	for i := 0; i < 200; i++ {
		x := c.sample(chol)
		for _, v := range x {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		ind := c.denormalize(x)
		for _, spec := range space {
			assert.GreaterOrEqual(t, ind[spec.Name], spec.Min)
			assert.LessOrEqual(t, ind[spec.Name], spec.Max)
		}
	}
}
