package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"unicorn/internal/config"
	"unicorn/internal/logger"
	"unicorn/internal/monitoring"
	"unicorn/internal/optimizer"
)

// RunStatus is the lifecycle state of one optimization run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// OptimizeRequest is the API payload for starting a run. Absent fields
// fall back to the configured defaults.
type OptimizeRequest struct {
	Algorithm  string                    `json:"algorithm" binding:"required"`
	Parameters []optimizer.ParameterSpec `json:"parameters"`
	Objectives []string                  `json:"objectives"`
	Seed       int64                     `json:"seed"`
}

// Run is one tracked optimization run.
type Run struct {
	ID          string                 `json:"id"`
	Algorithm   string                 `json:"algorithm"`
	Status      RunStatus              `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	Generations int                    `json:"generations"`
	Best        *optimizer.Evaluated   `json:"best,omitempty"`
	ParetoFront []*optimizer.Evaluated `json:"pareto_front,omitempty"`
	Error       string                 `json:"error,omitempty"`

	cancel context.CancelFunc
}

// RunManager owns the in-memory run registry and executes runs in
// background goroutines against the synthetic backtest evaluator. The
// real backtest engine plugs in through the same Evaluator contract.
type RunManager struct {
	cfg     *config.Config
	metrics *monitoring.Metrics
	log     logger.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunManager creates the registry.
func NewRunManager(cfg *config.Config, metrics *monitoring.Metrics, log logger.Logger) *RunManager {
	return &RunManager{
		cfg:     cfg,
		metrics: metrics,
		log:     log.WithModule("optimizer.runs"),
		runs:    make(map[string]*Run),
	}
}

// Start validates the request and launches the run.
func (rm *RunManager) Start(req OptimizeRequest) (*Run, error) {
	space := rm.cfg.Space()
	if len(req.Parameters) > 0 {
		space = optimizer.ParameterSpace(req.Parameters)
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	objectives, err := rm.resolveObjectives(req.Objectives)
	if err != nil {
		return nil, err
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	eval := newSyntheticEvaluator(space, seed)

	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:        uuid.New().String(),
		Algorithm: req.Algorithm,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}

	execute, err := rm.buildEngine(req.Algorithm, space, eval, objectives, rng)
	if err != nil {
		cancel()
		return nil, err
	}

	rm.mu.Lock()
	rm.runs[run.ID] = run
	rm.mu.Unlock()

	rm.metrics.RunStarted()
	go func() {
		defer rm.metrics.RunFinished()
		defer cancel()
		execute(ctx, run, rm)
	}()

	rm.log.Info("optimization run started",
		"run_id", run.ID,
		"algorithm", req.Algorithm,
		"seed", seed,
		"parameters", len(space),
	)
	snap := *run
	return &snap, nil
}

// Get returns a snapshot of one run. Completion mutates the tracked run
// under the manager lock, so readers always get a copy.
func (rm *RunManager) Get(id string) (*Run, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	run, ok := rm.runs[id]
	if !ok {
		return nil, false
	}
	snap := *run
	return &snap, true
}

// List returns snapshots of all runs sorted by creation time, newest
// first.
func (rm *RunManager) List() []*Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]*Run, 0, len(rm.runs))
	for _, run := range rm.runs {
		snap := *run
		out = append(out, &snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CancelAll cancels every running optimization.
func (rm *RunManager) CancelAll() {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, run := range rm.runs {
		if run.Status == StatusRunning {
			run.cancel()
		}
	}
}

func (rm *RunManager) resolveObjectives(names []string) ([]optimizer.Objective, error) {
	if len(names) == 0 {
		names = rm.cfg.Optimizer.Objectives
	}
	if len(names) == 0 {
		names = []string{"return", "drawdown"}
	}
	objectives := make([]optimizer.Objective, len(names))
	for i, name := range names {
		o, err := optimizer.ParseObjective(name)
		if err != nil {
			return nil, err
		}
		objectives[i] = o
	}
	return objectives, nil
}

type runFunc func(ctx context.Context, run *Run, rm *RunManager)

// buildEngine maps the algorithm name onto a configured engine.
func (rm *RunManager) buildEngine(algorithm string, space optimizer.ParameterSpace, eval optimizer.Evaluator, objectives []optimizer.Objective, rng *rand.Rand) (runFunc, error) {
	opt := rm.cfg.Optimizer
	switch algorithm {
	case "ga":
		cfg := optimizer.GAConfig{
			PopulationSize:    opt.GA.PopulationSize,
			Generations:       opt.GA.Generations,
			EliteSize:         opt.GA.EliteSize,
			CrossoverRate:     opt.GA.CrossoverRate,
			MutationRate:      opt.GA.MutationRate,
			AdaptiveOperators: opt.GA.Adaptive,
			Constraints:       optimizer.DefaultConstraints(),
			Concurrency:       opt.Concurrency,
			Metrics:           rm.metrics,
		}
		if opt.GA.Crossover != "" {
			cfg.Crossover, _ = optimizer.ParseCrossoverOp(opt.GA.Crossover)
		}
		if opt.GA.Mutation != "" {
			cfg.Mutation, _ = optimizer.ParseMutationOp(opt.GA.Mutation)
		}
		if opt.GA.Selection != "" {
			cfg.Selection, _ = optimizer.ParseSelectionOp(opt.GA.Selection)
		}
		engine, err := optimizer.NewGeneticAlgorithm(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeSingle(run)(engine.Run(ctx))
		}, nil
	case "island":
		cfg := optimizer.IslandConfig{
			GA: optimizer.GAConfig{
				PopulationSize: opt.GA.PopulationSize,
				Generations:    opt.GA.Generations,
				EliteSize:      opt.GA.EliteSize,
				CrossoverRate:  opt.GA.CrossoverRate,
				MutationRate:   opt.GA.MutationRate,
				Constraints:    optimizer.DefaultConstraints(),
				Concurrency:    opt.Concurrency,
				Metrics:        rm.metrics,
			},
		}
		engine, err := optimizer.NewIslandModel(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeSingle(run)(engine.Run(ctx))
		}, nil
	case "nsga2":
		cfg := optimizer.NSGAIIConfig{
			PopulationSize: opt.NSGAII.PopulationSize,
			Generations:    opt.NSGAII.Generations,
			CrossoverRate:  opt.NSGAII.CrossoverRate,
			MutationRate:   opt.NSGAII.MutationRate,
			Objectives:     objectives,
			Constraints:    optimizer.DefaultConstraints(),
			Concurrency:    opt.Concurrency,
			Metrics:        rm.metrics,
		}
		if opt.NSGAII.Crossover != "" {
			if op, err := optimizer.ParseCrossoverOp(opt.NSGAII.Crossover); err == nil {
				cfg.Crossover = &op
			}
		}
		if opt.NSGAII.Mutation != "" {
			if op, err := optimizer.ParseMutationOp(opt.NSGAII.Mutation); err == nil {
				cfg.Mutation = &op
			}
		}
		engine, err := optimizer.NewNSGAII(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeMulti(run)(engine.Run(ctx))
		}, nil
	case "de":
		cfg := optimizer.DEConfig{
			PopulationSize: opt.DE.PopulationSize,
			Iterations:     opt.DE.Iterations,
			F:              opt.DE.F,
			CR:             opt.DE.CR,
			SelfAdaptive:   opt.DE.SelfAdaptive,
			Constraints:    optimizer.DefaultConstraints(),
			Concurrency:    opt.Concurrency,
			Metrics:        rm.metrics,
		}
		if opt.DE.Strategy != "" {
			cfg.Strategy, _ = optimizer.ParseDEStrategy(opt.DE.Strategy)
		}
		engine, err := optimizer.NewDifferentialEvolution(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeSingle(run)(engine.Run(ctx))
		}, nil
	case "pso":
		cfg := optimizer.PSOConfig{
			SwarmSize:    opt.PSO.SwarmSize,
			Iterations:   opt.PSO.Iterations,
			WMax:         opt.PSO.WMax,
			WMin:         opt.PSO.WMin,
			Cognitive:    opt.PSO.Cognitive,
			Social:       opt.PSO.Social,
			VMaxFraction: opt.PSO.VMaxFraction,
			Constraints:  optimizer.DefaultConstraints(),
			Concurrency:  opt.Concurrency,
			Metrics:      rm.metrics,
		}
		engine, err := optimizer.NewParticleSwarm(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeSingle(run)(engine.Run(ctx))
		}, nil
	case "cmaes":
		cfg := optimizer.CMAESConfig{
			Generations: opt.CMAES.Generations,
			Lambda:      opt.CMAES.Lambda,
			Sigma0:      opt.CMAES.Sigma0,
			Constraints: optimizer.DefaultConstraints(),
			Concurrency: opt.Concurrency,
			Metrics:     rm.metrics,
		}
		engine, err := optimizer.NewCMAES(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeSingle(run)(engine.Run(ctx))
		}, nil
	case "moead":
		cfg := optimizer.MOEADConfig{
			Subproblems:      opt.MOEAD.Subproblems,
			Generations:      opt.MOEAD.Generations,
			NeighborhoodSize: opt.MOEAD.NeighborhoodSize,
			PBITheta:         opt.MOEAD.PBITheta,
			Objectives:       objectives,
			Constraints:      optimizer.DefaultConstraints(),
			Concurrency:      opt.Concurrency,
			Metrics:          rm.metrics,
		}
		if opt.MOEAD.Aggregation != "" {
			cfg.Aggregation, _ = optimizer.ParseAggregationMethod(opt.MOEAD.Aggregation)
		}
		if opt.MOEAD.Crossover != "" {
			if op, err := optimizer.ParseCrossoverOp(opt.MOEAD.Crossover); err == nil {
				cfg.Crossover = &op
			}
		}
		if opt.MOEAD.Mutation != "" {
			if op, err := optimizer.ParseMutationOp(opt.MOEAD.Mutation); err == nil {
				cfg.Mutation = &op
			}
		}
		engine, err := optimizer.NewMOEAD(space, eval, cfg, rng)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, run *Run, rm *RunManager) {
			rm.completeMulti(run)(engine.Run(ctx))
		}, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algorithm)
	}
}

func (rm *RunManager) completeSingle(run *Run) func(*optimizer.Result, error) {
	return func(result *optimizer.Result, err error) {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		now := time.Now()
		run.FinishedAt = &now
		switch {
		case errors.Is(err, context.Canceled):
			run.Status = StatusCancelled
		case err != nil:
			run.Status = StatusFailed
			run.Error = err.Error()
		default:
			run.Status = StatusCompleted
		}
		if result != nil {
			run.Best = result.Best
			run.Generations = len(result.History)
		}
		rm.log.Info("run finished", "run_id", run.ID, "status", run.Status, "generations", run.Generations)
	}
}

func (rm *RunManager) completeMulti(run *Run) func(*optimizer.MultiObjectiveResult, error) {
	return func(result *optimizer.MultiObjectiveResult, err error) {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		now := time.Now()
		run.FinishedAt = &now
		switch {
		case errors.Is(err, context.Canceled):
			run.Status = StatusCancelled
		case err != nil:
			run.Status = StatusFailed
			run.Error = err.Error()
		default:
			run.Status = StatusCompleted
		}
		if result != nil {
			run.ParetoFront = result.ParetoFront
			run.Generations = len(result.History)
		}
		rm.log.Info("run finished", "run_id", run.ID, "status", run.Status, "front_size", len(run.ParetoFront))
	}
}

// newSyntheticEvaluator returns the demo evaluator: a deterministic,
// mildly multimodal landscape over the parameter space standing in for a
// backtest. Production deployments replace it with the real simulation
// engine behind the same contract.
func newSyntheticEvaluator(space optimizer.ParameterSpace, seed int64) optimizer.Evaluator {
	// Per-parameter optima fixed by the seed so repeated runs agree.
	anchors := make(map[string]float64, len(space))
	rng := rand.New(rand.NewSource(seed))
	for _, spec := range space {
		anchors[spec.Name] = 0.2 + 0.6*rng.Float64()
	}

	return optimizer.EvaluatorFunc(func(ctx context.Context, params optimizer.Individual) (*optimizer.EvaluationResult, error) {
		var score float64
		for _, spec := range space {
			r := spec.Max - spec.Min
			if r == 0 {
				continue
			}
			x := (params[spec.Name] - spec.Min) / r
			d := x - anchors[spec.Name]
			score += math.Exp(-8*d*d) + 0.1*math.Sin(6*math.Pi*x)
		}
		score /= float64(len(space))

		return &optimizer.EvaluationResult{
			AvgReturn:    score*0.4 - 0.1,
			MaxDrawdown:  0.3 * (1 - score),
			WinRate:      0.35 + 0.4*score,
			ProfitFactor: 0.8 + 1.5*score,
			SharpeRatio:  2.5*score - 0.5,
			Volatility:   0.25 * (1.2 - score),
			Trades:       40 + int(score*200),
		}, nil
	})
}
