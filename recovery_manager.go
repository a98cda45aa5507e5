package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streamingfast/logging"
	"github.com/streamingfast/shutter"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/PSilvestre/Clonos/determinant"
)

// recoveryPhase is the three-state lifecycle a task moves through on
// restart (spec §4.4): it waits for upstream channels to reconnect, replays
// its recorded determinants against them, then runs normally.
type recoveryPhase int32

const (
	phaseWaitingConnections recoveryPhase = iota
	phaseReplaying
	phaseRunning
)

func (p recoveryPhase) String() string {
	switch p {
	case phaseWaitingConnections:
		return "waiting-connections"
	case phaseReplaying:
		return "replaying"
	case phaseRunning:
		return "running"
	default:
		return "unknown"
	}
}

// AsyncActionHandler is invoked by checkAsyncEvent once the record counter
// reaches an asynchronous determinant's scheduled count (spec §4.4). For a
// BufferBuilt determinant this is ordinarily "cut the output buffer now".
type AsyncActionHandler func(ctx context.Context, d determinant.Determinant) error

// RecoveryManager coordinates one task's recovery: the single main-thread
// replay (driven through it by the force-feeder) and one
// subpartitionRecoveryThread per output subpartition with in-flight data
// (spec §4.4). It is grounded on sinker.go's *shutter.Shutter-embedding
// lifecycle shape, generalized from a single run loop to a small state
// machine.
type RecoveryManager struct {
	*shutter.Shutter

	jobCausalLog JobCausalLog
	epochTracker *EpochTracker
	subpartitions map[SubpartitionKey]PipelinedSubpartition
	asyncAction   AsyncActionHandler
	backOff       func() backoff.BackOff

	phase atomic.Int32

	readyToReplay     chan struct{}
	readyToReplayOnce sync.Once

	numberOfRecoveringSubpartitions atomic.Int32

	mu         sync.Mutex
	recovered  map[SubpartitionKey]bool
	unanswered map[SubpartitionKey]*InFlightLogRequestEvent

	state *replayingState

	logger *zap.Logger
	tracer logging.Tracer
}

// NewRecoveryManager constructs a manager in the waiting-connections phase.
// backOff is a factory rather than a shared instance because each in-flight
// log request needs its own fresh retry budget (grounded on backoff.go's
// BackOffStringer, which wraps exactly this kind of per-call backoff).
func NewRecoveryManager(
	jobCausalLog JobCausalLog,
	epochTracker *EpochTracker,
	subpartitions map[SubpartitionKey]PipelinedSubpartition,
	asyncAction AsyncActionHandler,
	backOff func() backoff.BackOff,
	logger *zap.Logger,
	tracer logging.Tracer,
) *RecoveryManager {
	return &RecoveryManager{
		Shutter:       shutter.New(),
		jobCausalLog:  jobCausalLog,
		epochTracker:  epochTracker,
		subpartitions: subpartitions,
		asyncAction:   asyncAction,
		backOff:       backOff,
		readyToReplay: make(chan struct{}),
		recovered:     make(map[SubpartitionKey]bool),
		unanswered:    make(map[SubpartitionKey]*InFlightLogRequestEvent),
		logger:        logger,
		tracer:        tracer,
	}
}

func (m *RecoveryManager) expectPhase(want recoveryPhase) error {
	if got := recoveryPhase(m.phase.Load()); got != want {
		return fmt.Errorf("recovery manager: expected phase %s, currently %s", want, got)
	}
	return nil
}

// ReadyToReplay returns a channel that closes once EnterReplaying has
// prepared the main-thread cursor and spawned subpartition recovery — the
// force-feeder may begin pulling as soon as this closes, independently of
// whether subpartition recovery has finished (spec §4.4: subpartition
// recovery and main-thread replay proceed in parallel).
func (m *RecoveryManager) ReadyToReplay() <-chan struct{} {
	return m.readyToReplay
}

// NumberOfRecoveringSubpartitions reports how many subpartition recovery
// threads are currently running.
func (m *RecoveryManager) NumberOfRecoveringSubpartitions() int32 {
	return m.numberOfRecoveringSubpartitions.Load()
}

// EnterReplaying transitions from waiting-connections into replaying (spec
// §4.4 point 1): it seeds the main-thread cursor, spawns one
// subpartitionRecoveryThread per partition delta, and signals ReadyToReplay.
// A causal log delta with an empty main-thread log finishes replaying
// immediately, before this call even returns.
func (m *RecoveryManager) EnterReplaying(ctx context.Context, delta VertexCausalLogDelta) error {
	if err := m.expectPhase(phaseWaitingConnections); err != nil {
		return err
	}
	m.phase.Store(int32(phaseReplaying))

	cursor := determinant.NewCursor(delta.MainThreadDelta)
	m.state = newReplayingState(cursor, m.finishReplaying)
	if err := m.state.prepareNext(); err != nil {
		return fmt.Errorf("recovery manager: priming main-thread cursor: %w", err)
	}

	for key, buf := range delta.PartitionDeltas {
		subpartition, ok := m.subpartitions[key]
		if !ok {
			return fmt.Errorf("recovery manager: no subpartition registered for %+v", key)
		}

		thread := &subpartitionRecoveryThread{
			key:          key,
			buf:          buf,
			subpartition: subpartition,
			jobCausalLog: m.jobCausalLog,
			manager:      m,
			logger: m.logger.With(
				zap.Int64("dataset_upper", key.Dataset.Upper),
				zap.Int64("dataset_lower", key.Dataset.Lower),
				zap.Uint8("subpartition", key.Subpartition),
			),
		}

		go func() {
			if err := thread.run(ctx); err != nil {
				m.logger.Error("subpartition recovery failed", zap.Error(err))
				m.Shutdown(err)
			}
		}()
	}

	m.readyToReplayOnce.Do(func() { close(m.readyToReplay) })
	return nil
}

// finishReplaying is invoked exactly once, by replayingState.prepareNext,
// when the main-thread cursor is exhausted (spec §4.4 point 1's exit):
// assert the consumed length matches the authoritative log, then transition
// to running. An empty (nil) main-thread log skips the length assertion.
func (m *RecoveryManager) finishReplaying() error {
	consumed := m.state.cursor.Consumed()
	if m.state.cursor.Len() > 0 {
		expected := m.jobCausalLog.MainThreadLogLength()
		if consumed != expected {
			ReplayLengthMismatchCount.Inc()
			return &ReplayLengthMismatchError{Scope: "main thread log", Consumed: consumed, Expected: expected}
		}
	}

	m.phase.Store(int32(phaseRunning))
	if m.tracer.Enabled() {
		m.logger.Debug("main thread replay finished", zap.Int("consumed_bytes", consumed))
	}
	return nil
}

// ReplayNextChannel is the force-feeder's channel-selection operation (spec
// §4.4 "operations exposed to replay consumer").
func (m *RecoveryManager) ReplayNextChannel() (byte, error) {
	if err := m.expectPhase(phaseReplaying); err != nil {
		return 0, err
	}
	return m.state.replayNextChannel()
}

// replayTimeAndRandomSource adapts a RecoveryManager's replay-side
// determinant consumption to the same TimeAndRandomSource interface
// DeterminantRecorder satisfies live, so an operator's Now()/NextRandomInt()
// call is identical in shape whether the task is replaying or running.
type replayTimeAndRandomSource struct {
	recovery *RecoveryManager
}

func (s replayTimeAndRandomSource) Now() (int64, error) { return s.recovery.ReplayNextTimestamp() }

func (s replayTimeAndRandomSource) NextRandomInt() (int32, error) { return s.recovery.ReplayRandomInt() }

// ReplayNextTimestamp is the replay consumer's currentTimeMillis() override.
func (m *RecoveryManager) ReplayNextTimestamp() (int64, error) {
	if err := m.expectPhase(phaseReplaying); err != nil {
		return 0, err
	}
	return m.state.replayNextTimestamp()
}

// ReplayRandomInt is the replay consumer's nextInt() override.
func (m *RecoveryManager) ReplayRandomInt() (int32, error) {
	if err := m.expectPhase(phaseReplaying); err != nil {
		return 0, err
	}
	return m.state.replayRandomInt()
}

// CheckAsyncEvent drains any asynchronous determinant whose scheduled record
// count has been reached. The force-feeder calls this after every record
// dispatch, before returning control to its caller (spec §4.4).
//
// Unlike ReplayNextChannel/ReplayNextTimestamp/ReplayRandomInt, this accepts
// phaseRunning as well as phaseReplaying: replaying the very last Order
// determinant can exhaust the main-thread cursor and transition the phase to
// running inside that same ReplayNextChannel call, before the force-feeder
// gets a chance to call CheckAsyncEvent for the record it just dispatched.
// state.checkAsyncEvent is a no-op once the cursor is exhausted, so honoring
// the call here is safe.
func (m *RecoveryManager) CheckAsyncEvent(ctx context.Context) error {
	phase := recoveryPhase(m.phase.Load())
	if phase != phaseReplaying && phase != phaseRunning {
		return fmt.Errorf("recovery manager: expected phase %s or %s, currently %s", phaseReplaying, phaseRunning, phase)
	}
	return m.state.checkAsyncEvent(ctx, m.epochTracker, m.asyncAction)
}

// NotifyNewInputChannel handles a late-reconnecting upstream channel during
// replay (spec §4.4 "notifyNewInputChannel"). If the channel's subpartition
// has already finished recovering, the in-flight log resend is issued
// immediately; otherwise it is queued and honored by the subpartition
// recovery thread once it completes.
func (m *RecoveryManager) NotifyNewInputChannel(ctx context.Context, key SubpartitionKey, currentEpoch uint64, buffersToSkip int) error {
	event := &InFlightLogRequestEvent{Partition: key, CurrentEpoch: currentEpoch, BuffersToSkip: buffersToSkip}

	m.mu.Lock()
	done := m.recovered[key]
	if !done {
		m.unanswered[key] = event
	}
	m.mu.Unlock()

	if !done {
		return nil
	}
	return m.honorInFlightRequest(ctx, key, event)
}

func (m *RecoveryManager) markRecoveredAndTakeUnanswered(key SubpartitionKey) *InFlightLogRequestEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recovered[key] = true
	if event, ok := m.unanswered[key]; ok {
		delete(m.unanswered, key)
		return event
	}
	return nil
}

// honorInFlightRequest re-requests a subpartition's in-flight log, retrying
// with backoff. Failure here is InFlightLogRequestIO (spec §7): logged by
// the caller, never fatal to recovery as a whole.
func (m *RecoveryManager) honorInFlightRequest(ctx context.Context, key SubpartitionKey, event *InFlightLogRequestEvent) error {
	subpartition, ok := m.subpartitions[key]
	if !ok {
		return fmt.Errorf("recovery manager: no subpartition registered for %+v", key)
	}

	operation := func() error {
		return subpartition.RequestReplay(ctx, event.CurrentEpoch, event.BuffersToSkip)
	}

	label := fmt.Sprintf("%d:%d:%d", key.Dataset.Upper, key.Dataset.Lower, key.Subpartition)
	attempted := false
	notify := func(err error, wait time.Duration) {
		attempted = true
		m.logger.Debug("retrying in-flight log request",
			zap.String("subpartition", label),
			zap.Stringer("back_off", BackOffStringer{BackOff: m.backOff()}),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(m.backOff(), ctx), notify)
	if attempted {
		InFlightLogRequestRetryCount.Inc(label)
	}
	if err != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrBackOffExpired, err)
		}
		return NewRetryableError(err)
	}
	return nil
}
