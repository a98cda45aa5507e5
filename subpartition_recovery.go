package replay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/PSilvestre/Clonos/determinant"
)

// subpartitionRecoveryThread rebuilds one output subpartition's in-flight
// buffers from its recorded BufferBuilt determinants (spec §4.4.1). One
// instance is spawned per partition delta by RecoveryManager.EnterReplaying
// and runs concurrently with the main-thread replay and every other
// subpartition's recovery.
type subpartitionRecoveryThread struct {
	key          SubpartitionKey
	buf          []byte
	subpartition PipelinedSubpartition
	jobCausalLog JobCausalLog
	manager      *RecoveryManager
	logger       *zap.Logger
}

func (t *subpartitionRecoveryThread) run(ctx context.Context) error {
	t.manager.numberOfRecoveringSubpartitions.Inc()
	defer t.manager.numberOfRecoveringSubpartitions.Dec()

	t.subpartition.MarkRecoveringInFlight()

	cursor := determinant.NewCursor(t.buf)
	for cursor.Remaining() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.manager.Terminating():
			return fmt.Errorf("subpartition %+v recovery: manager is terminating", t.key)
		default:
		}

		d, ok, err := cursor.DecodeNext()
		if err != nil {
			return fmt.Errorf("subpartition %+v recovery: %w", t.key, err)
		}
		if !ok {
			break
		}
		if d.Kind != determinant.TagBufferBuilt {
			return fmt.Errorf("subpartition %+v recovery: expected BufferBuilt determinant, got %s", t.key, d.Kind)
		}

		if err := t.subpartition.RebuildBuffer(int(d.Length)); err != nil {
			return fmt.Errorf("subpartition %+v recovery: rebuild buffer: %w", t.key, err)
		}
	}

	consumed := cursor.Consumed()
	expected := t.jobCausalLog.SubpartitionLogLength(t.key)
	if consumed != expected {
		ReplayLengthMismatchCount.Inc()
		return &ReplayLengthMismatchError{Scope: fmt.Sprintf("subpartition %+v", t.key), Consumed: consumed, Expected: expected}
	}

	if pending := t.manager.markRecoveredAndTakeUnanswered(t.key); pending != nil {
		if err := t.manager.honorInFlightRequest(ctx, t.key, pending); err != nil {
			t.logger.Warn("deferred in-flight log request failed", zap.Error(err))
		}
	}

	t.subpartition.ClearRecoveringInFlight()
	t.subpartition.NotifyDataAvailable()
	return nil
}
