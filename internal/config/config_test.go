package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unicorn/internal/testutils"
)

const validYAML = `
app:
  name: "unicorn-optimizer"
  version: "1.0.0"
  env: "development"

server:
  host: "127.0.0.1"
  port: 8082
  read_timeout: 30s
  write_timeout: 30s

logging:
  level: "error"
  format: "text"
  output: "stdout"

optimizer:
  concurrency: 4
  objectives:
    - "return"
    - "drawdown"
  parameters:
    - name: "ma_period"
      min: 5
      max: 50
      step: 1
      type: "integer"
      default: 20
    - name: "stop_loss"
      min: 0.01
      max: 0.05
      step: 0.005
      type: "float"
      default: 0.02
  ga:
    population_size: 30
    generations: 50
    crossover: "sbx"
    mutation: "polynomial"
    selection: "tournament"
  de:
    strategy: "rand/1/bin"
    self_adaptive: true
  moead:
    aggregation: "tchebycheff"

schedule:
  enabled: true
  cron: "0 2 * * *"
  algorithm: "ga"
`

func writeConfig(t *testing.T, suite *testutils.TestSuite, content string) string {
	path := filepath.Join(suite.TempDir, "optimizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	cfg, err := Load(writeConfig(t, suite, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "unicorn-optimizer", cfg.App.Name)
	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 4, cfg.Optimizer.Concurrency)
	assert.Equal(t, []string{"return", "drawdown"}, cfg.Optimizer.Objectives)
	assert.Equal(t, 30, cfg.Optimizer.GA.PopulationSize)
	assert.Equal(t, "sbx", cfg.Optimizer.GA.Crossover)
	assert.True(t, cfg.Optimizer.DE.SelfAdaptive)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, "0 2 * * *", cfg.Schedule.Cron)

	space := cfg.Space()
	require.Len(t, space, 2)
	assert.Equal(t, "ma_period", space[0].Name)
	assert.NoError(t, space.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/optimizer.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	_, err := Load(writeConfig(t, suite, "optimizer: [unclosed"))
	assert.Error(t, err)
}

func TestValidateRejectsBadOperatorNames(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown objective", func(c *Config) { c.Optimizer.Objectives = []string{"alpha"} }},
		{"unknown crossover", func(c *Config) { c.Optimizer.GA.Crossover = "quantum" }},
		{"unknown mutation", func(c *Config) { c.Optimizer.GA.Mutation = "bitflip" }},
		{"unknown selection", func(c *Config) { c.Optimizer.GA.Selection = "lottery" }},
		{"unknown nsga2 crossover", func(c *Config) { c.Optimizer.NSGAII.Crossover = "quantum" }},
		{"unknown nsga2 mutation", func(c *Config) { c.Optimizer.NSGAII.Mutation = "bitflip" }},
		{"unknown moead crossover", func(c *Config) { c.Optimizer.MOEAD.Crossover = "quantum" }},
		{"unknown moead mutation", func(c *Config) { c.Optimizer.MOEAD.Mutation = "bitflip" }},
		{"unknown de strategy", func(c *Config) { c.Optimizer.DE.Strategy = "rand/9/exp" }},
		{"unknown aggregation", func(c *Config) { c.Optimizer.MOEAD.Aggregation = "lexicographic" }},
		{"invalid port", func(c *Config) { c.Server.Port = 70000 }},
		{"invalid parameter", func(c *Config) { c.Optimizer.Parameters[0].Step = 0 }},
	}

	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()
	path := writeConfig(t, suite, validYAML)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()
	path := writeConfig(t, suite, validYAML)

	t.Setenv("OPTIMIZER_PORT", "9090")
	t.Setenv("OPTIMIZER_ENV", "production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.App.Env)
}

func TestEnvOverrideIgnoresGarbagePort(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()
	path := writeConfig(t, suite, validYAML)

	t.Setenv("OPTIMIZER_PORT", "not-a-port")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8082, cfg.Server.Port)
}
