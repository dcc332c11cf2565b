// Package scheduler drives the periodic consensus recomputation. Each pool
// type gets its own fixed-interval job; a tick that fires while the
// previous run for that type is still in progress is skipped, and the
// pools it would have processed stay dirty until the next tick.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wynnsource/loot-consensus/internal/config"
	prommetrics "github.com/wynnsource/loot-consensus/internal/metrics"
	"github.com/wynnsource/loot-consensus/internal/rotation"
	"github.com/wynnsource/loot-consensus/pkg/logger"
)

// ConsensusRunner recomputes consensus for one pool type.
type ConsensusRunner interface {
	Recompute(ctx context.Context, poolType rotation.PoolType) error
}

// Service handles consensus recomputation scheduling.
type Service struct {
	config *config.Config
	runner ConsensusRunner
	log    *logger.Logger
	cron   *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.Config, runner ConsensusRunner, log *logger.Logger) *Service {
	return &Service{
		config: cfg,
		runner: runner,
		log:    log,
	}
}

// Start registers and starts the per-pool-type recomputation jobs.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	interval := s.config.Scheduler.Interval()
	spec := fmt.Sprintf("@every %s", interval)

	// SkipIfStillRunning coalesces overlapping ticks per job.
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	for _, poolType := range rotation.PoolTypes() {
		poolType := poolType
		_, err := s.cron.AddFunc(spec, func() {
			s.runRecompute(context.Background(), poolType)
		})
		if err != nil {
			return fmt.Errorf("failed to register recompute job for %s: %w", poolType, err)
		}
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Dur("interval", interval).
		Int("pool_types", len(rotation.PoolTypes())).
		Str("next_run", nextRun).
		Msg("Consensus scheduler started")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for in-flight runs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Consensus scheduler stopped")
	}
}

// runRecompute executes one recomputation pass for a pool type.
func (s *Service) runRecompute(ctx context.Context, poolType rotation.PoolType) {
	start := time.Now()

	defer func() {
		prommetrics.SetSchedulerLastRun(string(poolType))
	}()

	s.log.Debug().Str("pool_type", string(poolType)).Msg("Running consensus recomputation")

	if err := s.runner.Recompute(ctx, poolType); err != nil {
		s.log.Error().
			Err(err).
			Str("pool_type", string(poolType)).
			Dur("duration", time.Since(start)).
			Msg("Consensus recomputation run failed")
		return
	}
}
