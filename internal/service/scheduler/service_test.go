package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wynnsource/loot-consensus/internal/config"
	"github.com/wynnsource/loot-consensus/internal/rotation"
	"github.com/wynnsource/loot-consensus/pkg/logger"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []rotation.PoolType
	err   error
}

func (f *fakeRunner) Recompute(_ context.Context, poolType rotation.PoolType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, poolType)
	return f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func schedulerConfig(enabled bool) *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			Enabled:         enabled,
			IntervalMinutes: 20,
		},
	}
}

func TestStart_Disabled(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(schedulerConfig(false), runner, logger.Nop())

	require.NoError(t, svc.Start())
	assert.Nil(t, svc.cron, "disabled scheduler must not start cron")
	assert.Zero(t, runner.callCount())

	svc.Stop() // must be safe without a running cron
}

func TestStart_RegistersJobPerPoolType(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(schedulerConfig(true), runner, logger.Nop())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.NotNil(t, svc.cron)
	assert.Len(t, svc.cron.Entries(), len(rotation.PoolTypes()))
}

func TestRunRecompute_InvokesRunner(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(schedulerConfig(true), runner, logger.Nop())

	svc.runRecompute(context.Background(), rotation.PoolTypeLRItem)

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, rotation.PoolTypeLRItem, runner.calls[0])
}

func TestRunRecompute_RunnerErrorIsSwallowed(t *testing.T) {
	runner := &fakeRunner{err: errors.New("db unavailable")}
	svc := NewService(schedulerConfig(true), runner, logger.Nop())

	// A failed run is logged and dropped; the next tick retries.
	svc.runRecompute(context.Background(), rotation.PoolTypeRaidAspect)
	svc.runRecompute(context.Background(), rotation.PoolTypeRaidAspect)

	assert.Equal(t, 2, runner.callCount())
}
