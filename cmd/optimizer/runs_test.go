package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unicorn/internal/config"
	"unicorn/internal/logger"
	"unicorn/internal/monitoring"
	"unicorn/internal/optimizer"
)

func testConfig() *config.Config {
	return &config.Config{
		Optimizer: config.OptimizerConfig{
			Concurrency: 2,
			Objectives:  []string{"return", "drawdown"},
			Parameters: []optimizer.ParameterSpec{
				{Name: "ma_period", Min: 5, Max: 50, Step: 1, Type: optimizer.TypeInteger, Default: 20},
				{Name: "stop_loss", Min: 0.01, Max: 0.05, Step: 0.005, Type: optimizer.TypeFloat, Default: 0.02},
			},
			GA:     config.GASection{PopulationSize: 10, Generations: 5},
			NSGAII: config.NSGAIISection{PopulationSize: 10, Generations: 5},
			DE:     config.DESection{PopulationSize: 8, Iterations: 5},
			PSO:    config.PSOSection{SwarmSize: 8, Iterations: 5},
			CMAES:  config.CMAESSection{Generations: 5},
			MOEAD:  config.MOEADSection{Subproblems: 10, Generations: 5},
		},
	}
}

func newTestManager() *RunManager {
	log := logger.NewLogger(logger.Config{
		Level:  logger.LevelError,
		Format: logger.FormatText,
		Output: "stdout",
	})
	return NewRunManager(testConfig(), monitoring.NewMetrics(), log)
}

func waitForRun(t *testing.T, rm *RunManager, id string) *Run {
	t.Helper()
	var run *Run
	require.Eventually(t, func() bool {
		current, ok := rm.Get(id)
		if !ok || current.Status == StatusRunning {
			return false
		}
		run = current
		return true
	}, 30*time.Second, 20*time.Millisecond)
	return run
}

func TestRunManagerSingleObjectiveAlgorithms(t *testing.T) {
	rm := newTestManager()

	for _, algorithm := range []string{"ga", "de", "pso", "cmaes", "island"} {
		t.Run(algorithm, func(t *testing.T) {
			started, err := rm.Start(OptimizeRequest{Algorithm: algorithm, Seed: 7})
			require.NoError(t, err)
			require.NotEmpty(t, started.ID)
			assert.Equal(t, StatusRunning, started.Status)

			run := waitForRun(t, rm, started.ID)
			assert.Equal(t, StatusCompleted, run.Status)
			require.NotNil(t, run.Best)
			assert.NotEmpty(t, run.Best.Params)
			assert.Greater(t, run.Generations, 0)
		})
	}
}

func TestRunManagerMultiObjectiveAlgorithms(t *testing.T) {
	rm := newTestManager()

	for _, algorithm := range []string{"nsga2", "moead"} {
		t.Run(algorithm, func(t *testing.T) {
			started, err := rm.Start(OptimizeRequest{Algorithm: algorithm, Seed: 7})
			require.NoError(t, err)

			run := waitForRun(t, rm, started.ID)
			assert.Equal(t, StatusCompleted, run.Status)
			assert.NotEmpty(t, run.ParetoFront)
		})
	}
}

func TestRunManagerUnknownAlgorithm(t *testing.T) {
	rm := newTestManager()
	_, err := rm.Start(OptimizeRequest{Algorithm: "hill_climbing"})
	assert.Error(t, err)
}

func TestRunManagerRejectsBadRequest(t *testing.T) {
	rm := newTestManager()

	_, err := rm.Start(OptimizeRequest{
		Algorithm: "ga",
		Parameters: []optimizer.ParameterSpec{
			{Name: "p", Min: 10, Max: 1, Step: 1, Type: optimizer.TypeInteger, Default: 5},
		},
	})
	assert.Error(t, err, "invalid parameter override")

	_, err = rm.Start(OptimizeRequest{Algorithm: "ga", Objectives: []string{"alpha"}})
	assert.Error(t, err, "unknown objective")
}

func TestRunManagerGetUnknownID(t *testing.T) {
	rm := newTestManager()
	_, ok := rm.Get("no-such-run")
	assert.False(t, ok)
}

func TestRunManagerListNewestFirst(t *testing.T) {
	rm := newTestManager()

	first, err := rm.Start(OptimizeRequest{Algorithm: "ga", Seed: 1})
	require.NoError(t, err)
	waitForRun(t, rm, first.ID)

	second, err := rm.Start(OptimizeRequest{Algorithm: "ga", Seed: 2})
	require.NoError(t, err)
	waitForRun(t, rm, second.ID)

	runs := rm.List()
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestSyntheticEvaluatorIsDeterministic(t *testing.T) {
	space := optimizer.ParameterSpace(testConfig().Optimizer.Parameters)
	evalA := newSyntheticEvaluator(space, 42)
	evalB := newSyntheticEvaluator(space, 42)

	ctx := context.Background()
	params := space.Defaults()
	a, err := evalA.Evaluate(ctx, params)
	require.NoError(t, err)
	b, err := evalB.Evaluate(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	different := newSyntheticEvaluator(space, 43)
	c, err := different.Evaluate(ctx, params)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
