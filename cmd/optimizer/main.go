package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"unicorn/internal/config"
	"unicorn/internal/logger"
	"unicorn/internal/monitoring"
)

// OptimizerService is the standalone parameter-optimization service.
type OptimizerService struct {
	cfg      *config.Config
	server   *http.Server
	runs     *RunManager
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	cron     *cron.Cron
	log      logger.Logger
}

func main() {
	var (
		configFile = flag.String("config", "configs/optimizer.yaml", "Configuration file path")
		port       = flag.Int("port", 0, "HTTP server port override")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// .env is optional; environment variables win over the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = logger.LogLevel(*logLevel)
	}

	logger.Init(cfg.Logging)
	log := logger.GetGlobalLogger().WithModule("optimizer.service")

	service, err := NewOptimizerService(cfg, log)
	if err != nil {
		log.Fatal("failed to create optimizer service", "error", err)
	}
	if err := service.Start(); err != nil {
		log.Fatal("failed to start optimizer service", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down optimizer service")
	if err := service.Shutdown(); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}

// NewOptimizerService wires the run manager, metrics and HTTP surface.
func NewOptimizerService(cfg *config.Config, log logger.Logger) (*OptimizerService, error) {
	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	s := &OptimizerService{
		cfg:      cfg,
		runs:     NewRunManager(cfg, metrics, log),
		metrics:  metrics,
		registry: registry,
		log:      log,
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.POST("/optimize", s.handleOptimize)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
	}
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	if cfg.Schedule.Enabled {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(cfg.Schedule.Cron, s.scheduledRun)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule.Cron, err)
		}
	}
	return s, nil
}

// Start launches the HTTP listener and the re-optimization schedule.
func (s *OptimizerService) Start() error {
	go func() {
		s.log.Info("optimizer service listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server stopped", "error", err)
		}
	}()
	if s.cron != nil {
		s.cron.Start()
		s.log.Info("re-optimization schedule enabled", "cron", s.cfg.Schedule.Cron)
	}
	return nil
}

// Shutdown stops the schedule, cancels running optimizations and drains
// the HTTP server.
func (s *OptimizerService) Shutdown() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.runs.CancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// scheduledRun kicks off a periodic re-optimization with the configured
// algorithm over the configured parameter space.
func (s *OptimizerService) scheduledRun() {
	req := OptimizeRequest{Algorithm: s.cfg.Schedule.Algorithm}
	run, err := s.runs.Start(req)
	if err != nil {
		s.log.Error("scheduled run failed to start", "error", err)
		return
	}
	s.log.Info("scheduled re-optimization started", "run_id", run.ID, "algorithm", run.Algorithm)
}

func (s *OptimizerService) handleOptimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.runs.Start(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "status": run.Status})
}

func (s *OptimizerService) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.runs.List()})
}

func (s *OptimizerService) handleGetRun(c *gin.Context) {
	run, ok := s.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *OptimizerService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"app":     s.cfg.App.Name,
		"version": s.cfg.App.Version,
	})
}
