package optimizer

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticleSwarmValidation(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0)
	rng := rand.New(rand.NewSource(1))

	_, err := NewParticleSwarm(space, nil, PSOConfig{}, rng)
	assert.Error(t, err)

	_, err = NewParticleSwarm(space, eval, PSOConfig{}, nil)
	assert.Error(t, err)

	pso, err := NewParticleSwarm(space, eval, PSOConfig{}, rng)
	require.NoError(t, err)
	assert.Equal(t, 30, pso.cfg.SwarmSize)
	assert.Equal(t, 0.7, pso.cfg.InertiaWeight)
}

func TestPSOGlobalBestNeverRegresses(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0.02)

	var bests []float64
	pso, err := NewParticleSwarm(space, eval, PSOConfig{
		SwarmSize:  12,
		Iterations: 15,
		Weights:    Weights{ObjectiveReturn: 1},
		OnProgress: func(stats GenerationStats) {
			bests = append(bests, stats.Best.Fitness)
		},
	}, rand.New(rand.NewSource(43)))
	require.NoError(t, err)

	result, err := pso.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, bests)

	for _, b := range bests {
		assert.LessOrEqual(t, b, result.Best.Fitness,
			"the returned best is the best the swarm ever saw")
	}
}

func TestPSOFindsThreshold(t *testing.T) {
	space := ParameterSpace{
		{Name: "threshold", Min: 0, Max: 100, Step: 1, Type: TypeInteger, Default: 50},
	}
	eval := EvaluatorFunc(func(ctx context.Context, params Individual) (*EvaluationResult, error) {
		d := params["threshold"] - 42
		return &EvaluationResult{AvgReturn: -d * d}, nil
	})

	pso, err := NewParticleSwarm(space, eval, PSOConfig{
		SwarmSize:  16,
		Iterations: 40,
		Weights:    Weights{ObjectiveReturn: 1},
	}, rand.New(rand.NewSource(47)))
	require.NoError(t, err)

	result, err := pso.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 42, result.Best.Params["threshold"], 2)
}

func TestPSOInertiaDecay(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0)

	pso, err := NewParticleSwarm(space, eval, PSOConfig{
		Iterations: 100,
		WMax:       0.9,
		WMin:       0.4,
	}, rand.New(rand.NewSource(53)))
	require.NoError(t, err)

	assert.InDelta(t, 0.9, pso.inertia(0), 1e-12)
	assert.InDelta(t, 0.65, pso.inertia(50), 1e-12)
	assert.Greater(t, pso.inertia(99), 0.4)

	// Without a decay schedule the constant weight applies.
	constant, err := NewParticleSwarm(space, eval, PSOConfig{
		Iterations:    100,
		InertiaWeight: 0.7,
	}, rand.New(rand.NewSource(59)))
	require.NoError(t, err)
	assert.Equal(t, 0.7, constant.inertia(0))
	assert.Equal(t, 0.7, constant.inertia(99))
}

func TestPSOVelocityStaysClamped(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0.02)

	pso, err := NewParticleSwarm(space, eval, PSOConfig{
		SwarmSize:    10,
		Iterations:   10,
		VMaxFraction: 0.2,
		Weights:      Weights{ObjectiveReturn: 1},
	}, rand.New(rand.NewSource(61)))
	require.NoError(t, err)

	_, err = pso.Run(context.Background())
	require.NoError(t, err)

	for _, p := range pso.particles {
		for _, spec := range space {
			vmax := 0.2 * spec.Range()
			assert.LessOrEqual(t, p.velocity[spec.Name], vmax)
			assert.GreaterOrEqual(t, p.velocity[spec.Name], -vmax)
		}
	}
}

func TestPSOPositionsStayFeasible(t *testing.T) {
	space := testSpace()
	eval := sphereEvaluator(space, 0.02)

	pso, err := NewParticleSwarm(space, eval, PSOConfig{
		SwarmSize:  10,
		Iterations: 10,
		Weights:    Weights{ObjectiveReturn: 1},
	}, rand.New(rand.NewSource(67)))
	require.NoError(t, err)

	_, err = pso.Run(context.Background())
	require.NoError(t, err)

	for _, p := range pso.particles {
		for _, spec := range space {
			v := p.position[spec.Name]
			assert.GreaterOrEqual(t, v, spec.Min)
			assert.LessOrEqual(t, v, spec.Max)
		}
	}
}
