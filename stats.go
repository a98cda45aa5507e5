package replay

import (
	"time"

	"github.com/streamingfast/dmetrics"
	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

// ReplicaStats tracks and periodically logs one task replica's progress:
// the rate of dispatched stream elements, the moving average gap between
// them, and how many subpartitions are still mid-recovery. Grounded on
// stats.go's shutter-scoped ticking logger, generalized from substreams
// block/undo message rates to this package's element throughput.
type ReplicaStats struct {
	*shutter.Shutter

	elementRate *dmetrics.AvgRatePromCounter
	elementGap  *AverageInt64

	recovery *RecoveryManager

	lastElementAt time.Time
	nowFunc       func() time.Time

	logger *zap.Logger
}

// NewReplicaStats constructs stats bound to recovery (may be nil if this
// task never recovers from a causal log, e.g. a from-scratch run).
func NewReplicaStats(recovery *RecoveryManager, logger *zap.Logger) *ReplicaStats {
	return &ReplicaStats{
		Shutter:     shutter.New(),
		elementRate: dmetrics.MustNewAvgRateFromPromCounter(ElementsProcessedCount, 1*time.Second, 30*time.Second, "elem"),
		elementGap:  NewAverageInt64WithCount("element_gap_ms", 100),
		recovery:    recovery,
		nowFunc:     time.Now,
		logger:      logger,
	}
}

// RecordElement marks one stream element as dispatched: bumps the
// package-level counter (which feeds elementRate) and updates the moving
// average gap between consecutive elements.
func (s *ReplicaStats) RecordElement() {
	ElementsProcessedCount.Inc()

	now := s.nowFunc()
	if !s.lastElementAt.IsZero() {
		s.elementGap.Add(now.Sub(s.lastElementAt).Milliseconds())
	}
	s.lastElementAt = now
}

// Start begins periodic logging at the given interval.
func (s *ReplicaStats) Start(each time.Duration) {
	if s.IsTerminating() || s.IsTerminated() {
		panic("already shutdown, refusing to start again")
	}

	go func() {
		ticker := time.NewTicker(each)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.LogNow()
			case <-s.Terminating():
				return
			}
		}
	}()
}

// LogNow emits one stats snapshot. Fields are ordered for readability in
// development logs, mirroring stats.go's field ordering convention.
func (s *ReplicaStats) LogNow() {
	fields := []zap.Field{
		zap.Stringer("element_rate", s.elementRate),
		zap.Float64("avg_element_gap_ms", s.elementGap.Average),
	}

	if s.recovery != nil {
		fields = append(fields, zap.Int32("recovering_subpartitions", s.recovery.NumberOfRecoveringSubpartitions()))
	}

	s.logger.Info("replica task stats", fields...)
}

// Close flushes the rate metric, logs one final snapshot, and shuts down.
func (s *ReplicaStats) Close() {
	s.elementRate.SyncNow()
	s.LogNow()

	s.Shutdown(nil)
	s.elementRate.Stop()
}
