// Package scheduler runs the pipeline on a fixed interval plus a
// periodic health probe.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// PipelineRunner triggers one full scrape cycle.
type PipelineRunner interface {
	Run(ctx context.Context) (*tracker.RunSummary, error)
}

// HealthChecker reports whether storage is reachable.
type HealthChecker interface {
	Current(ctx context.Context) (tracker.Mapping, error)
}

// Config sets the job intervals.
type Config struct {
	ScrapeInterval time.Duration
	HealthInterval time.Duration
}

// Scheduler owns the gocron instance and its two jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	pipeline  PipelineRunner
	health    HealthChecker
	logger    *zap.Logger
	cfg       Config
}

// New builds the scheduler and registers the jobs. Singleton mode keeps
// a slow scrape from overlapping the next tick.
func New(pipeline PipelineRunner, health HealthChecker, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if cfg.ScrapeInterval <= 0 {
		return nil, fmt.Errorf("scrape interval must be positive")
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{
		scheduler: sched,
		pipeline:  pipeline,
		health:    health,
		logger:    logger,
		cfg:       cfg,
	}
	if err := s.registerJobs(); err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.ScrapeInterval),
		gocron.NewTask(s.runPipeline),
		gocron.WithName("scrape-pipeline"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register pipeline job: %w", err)
	}

	if s.cfg.HealthInterval > 0 && s.health != nil {
		_, err = s.scheduler.NewJob(
			gocron.DurationJob(s.cfg.HealthInterval),
			gocron.NewTask(s.runHealthCheck),
			gocron.WithName("health-check"),
		)
		if err != nil {
			return fmt.Errorf("register health job: %w", err)
		}
	}
	return nil
}

// Start begins executing the registered jobs.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		zap.Duration("scrape_interval", s.cfg.ScrapeInterval),
		zap.Duration("health_interval", s.cfg.HealthInterval))
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.logger.Info("scheduler stopping")
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) runPipeline() {
	if _, err := s.pipeline.Run(context.Background()); err != nil {
		s.logger.Error("scheduled pipeline run failed", zap.Error(err))
	}
}

func (s *Scheduler) runHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.health.Current(ctx); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		return
	}
	s.logger.Debug("health check passed")
}
