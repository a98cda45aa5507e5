package replay

import (
	"context"
	"time"

	"github.com/streamingfast/logging"
	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

// TaskConfig holds ReplicaTask's tunables, set via the functional-options
// pattern (grounded on sinker_options.go).
type TaskConfig struct {
	StatsRefreshEach time.Duration
}

// TaskOption configures a TaskConfig.
type TaskOption func(*TaskConfig)

func defaultTaskConfig() *TaskConfig {
	return &TaskConfig{StatsRefreshEach: 15 * time.Second}
}

// WithStatsRefreshEach overrides how often ReplicaTask logs its stats
// snapshot. When the tracer is enabled, NewReplicaTask uses 5 seconds
// regardless of this option.
func WithStatsRefreshEach(d time.Duration) TaskOption {
	return func(c *TaskConfig) { c.StatsRefreshEach = d }
}

// ReplicaTask drives one task replica through its full lifecycle: wait for
// ReadyToReplay, force-feed the causal log until the recovery manager
// transitions out of Replaying, then hand off to the live input processor
// (spec §4.4's Replaying→Running transition feeding §4.3's force-feeder).
// Shape grounded on sinker.go's Run/run split: a shutter-scoped lifecycle
// with periodic stats logging and a terminating hook that flushes them.
type ReplicaTask[R any] struct {
	*shutter.Shutter

	recovery *RecoveryManager
	replay   *ForceFeederInputProcessor[R]
	live     *InputProcessor[R]

	stats *ReplicaStats
	cfg   *TaskConfig

	logger *zap.Logger
	tracer logging.Tracer
}

// NewReplicaTask constructs a task. replay may be nil if this replica never
// recovers from a causal log (recovery and live then run with recovery
// already in the Running phase).
func NewReplicaTask[R any](
	recovery *RecoveryManager,
	replay *ForceFeederInputProcessor[R],
	live *InputProcessor[R],
	stats *ReplicaStats,
	logger *zap.Logger,
	tracer logging.Tracer,
	opts ...TaskOption,
) *ReplicaTask[R] {
	cfg := defaultTaskConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if tracer.Enabled() {
		cfg.StatsRefreshEach = 5 * time.Second
	}

	return &ReplicaTask[R]{
		Shutter:  shutter.New(),
		recovery: recovery,
		replay:   replay,
		live:     live,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
	}
}

// Run blocks until recovery finishes and live processing exhausts, ctx is
// canceled, or a fatal error occurs. A context cancellation shuts the task
// down without error, since the task itself was not the cause of stopping.
func (t *ReplicaTask[R]) Run(ctx context.Context) error {
	t.OnTerminating(func(_ error) {
		t.stats.LogNow()
		t.logger.Info("replica task terminating")
		t.stats.Close()
	})

	t.stats.Start(t.cfg.StatsRefreshEach)
	t.logger.Info("starting replica task", zap.Duration("stats_refresh_each", t.cfg.StatsRefreshEach))

	err := t.run(ctx)

	shutdownErr := err
	if ctx.Err() == context.Canceled {
		shutdownErr = nil
	}
	t.Shutdown(shutdownErr)
	return err
}

func (t *ReplicaTask[R]) run(ctx context.Context) error {
	if t.recovery != nil {
		select {
		case <-t.recovery.ReadyToReplay():
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := t.runReplay(ctx); err != nil {
			return err
		}
	}

	return t.runLive(ctx)
}

func (t *ReplicaTask[R]) runReplay(ctx context.Context) error {
	for recoveryPhase(t.recovery.phase.Load()) == phaseReplaying {
		more, err := t.replay.ProcessInput(ctx)
		if err != nil {
			return err
		}
		if more {
			t.stats.RecordElement()
			continue
		}
		if t.replay.IsFinished() {
			return nil
		}
	}
	return nil
}

func (t *ReplicaTask[R]) runLive(ctx context.Context) error {
	for {
		more, err := t.live.ProcessInput(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		t.stats.RecordElement()
	}
}
