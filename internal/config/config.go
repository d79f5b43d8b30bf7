package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"unicorn/internal/logger"
	"unicorn/internal/optimizer"
)

// Config represents the optimizer service configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logging   logger.Config   `yaml:"logging"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port         int      `yaml:"port"`
	Host         string   `yaml:"host"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// Duration parses the "30s" notation; plain yaml.v3 cannot decode it
// into time.Duration directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ScheduleConfig wires periodic re-optimization runs.
type ScheduleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`      // cron spec, e.g. "0 2 * * *"
	Algorithm string `yaml:"algorithm"` // algorithm used for scheduled runs
}

// OptimizerConfig carries the parameter space and per-algorithm defaults.
type OptimizerConfig struct {
	Parameters  []optimizer.ParameterSpec `yaml:"parameters"`
	Objectives  []string                  `yaml:"objectives"`
	Concurrency int                       `yaml:"concurrency"`

	GA     GASection     `yaml:"ga"`
	NSGAII NSGAIISection `yaml:"nsga2"`
	DE     DESection     `yaml:"de"`
	PSO    PSOSection    `yaml:"pso"`
	CMAES  CMAESSection  `yaml:"cmaes"`
	MOEAD  MOEADSection  `yaml:"moead"`
}

// GASection represents genetic algorithm settings
type GASection struct {
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	EliteSize      int     `yaml:"elite_size"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	MutationRate   float64 `yaml:"mutation_rate"`
	Crossover      string  `yaml:"crossover"`
	Mutation       string  `yaml:"mutation"`
	Selection      string  `yaml:"selection"`
	Adaptive       bool    `yaml:"adaptive"`
}

// NSGAIISection represents NSGA-II settings
type NSGAIISection struct {
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	MutationRate   float64 `yaml:"mutation_rate"`
	Crossover      string  `yaml:"crossover"`
	Mutation       string  `yaml:"mutation"`
}

// DESection represents differential evolution settings
type DESection struct {
	PopulationSize int     `yaml:"population_size"`
	Iterations     int     `yaml:"iterations"`
	F              float64 `yaml:"f"`
	CR             float64 `yaml:"cr"`
	Strategy       string  `yaml:"strategy"`
	SelfAdaptive   bool    `yaml:"self_adaptive"`
}

// PSOSection represents particle swarm settings
type PSOSection struct {
	SwarmSize    int     `yaml:"swarm_size"`
	Iterations   int     `yaml:"iterations"`
	WMax         float64 `yaml:"w_max"`
	WMin         float64 `yaml:"w_min"`
	Cognitive    float64 `yaml:"cognitive"`
	Social       float64 `yaml:"social"`
	VMaxFraction float64 `yaml:"v_max_fraction"`
}

// CMAESSection represents CMA-ES settings
type CMAESSection struct {
	Generations int     `yaml:"generations"`
	Lambda      int     `yaml:"lambda"`
	Sigma0      float64 `yaml:"sigma0"`
}

// MOEADSection represents MOEA/D settings
type MOEADSection struct {
	Subproblems      int     `yaml:"subproblems"`
	Generations      int     `yaml:"generations"`
	NeighborhoodSize int     `yaml:"neighborhood_size"`
	Aggregation      string  `yaml:"aggregation"`
	PBITheta         float64 `yaml:"pbi_theta"`
	Crossover        string  `yaml:"crossover"`
	Mutation         string  `yaml:"mutation"`
}

// Load loads configuration from a YAML file and applies environment
// overrides.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides selected fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPTIMIZER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("OPTIMIZER_LOG_LEVEL"); v != "" {
		c.Logging.Level = logger.LogLevel(v)
	}
	if v := os.Getenv("OPTIMIZER_ENV"); v != "" {
		c.App.Env = v
	}
}

// Validate checks the parameter space and operator names before any run
// is created.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if len(c.Optimizer.Parameters) > 0 {
		if err := optimizer.ParameterSpace(c.Optimizer.Parameters).Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for _, name := range c.Optimizer.Objectives {
		if _, err := optimizer.ParseObjective(name); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if s := c.Optimizer.GA.Crossover; s != "" {
		if _, err := optimizer.ParseCrossoverOp(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if s := c.Optimizer.GA.Mutation; s != "" {
		if _, err := optimizer.ParseMutationOp(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if s := c.Optimizer.GA.Selection; s != "" {
		if _, err := optimizer.ParseSelectionOp(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for _, s := range []string{c.Optimizer.NSGAII.Crossover, c.Optimizer.MOEAD.Crossover} {
		if s == "" {
			continue
		}
		if _, err := optimizer.ParseCrossoverOp(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for _, s := range []string{c.Optimizer.NSGAII.Mutation, c.Optimizer.MOEAD.Mutation} {
		if s == "" {
			continue
		}
		if _, err := optimizer.ParseMutationOp(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if s := c.Optimizer.DE.Strategy; s != "" {
		if _, err := optimizer.ParseDEStrategy(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if s := c.Optimizer.MOEAD.Aggregation; s != "" {
		if _, err := optimizer.ParseAggregationMethod(s); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Space returns the configured parameter space.
func (c *Config) Space() optimizer.ParameterSpace {
	return optimizer.ParameterSpace(c.Optimizer.Parameters)
}
