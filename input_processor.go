package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/streamingfast/logging"
	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

// eagerNumRecordsInCounter resolves the records-in counter once, at
// construction time, rather than lazily on the first hot-path call. Spec §9
// flags the reference implementation's lazy lookup as racing with a
// concurrent cleanup; this package always initialises eagerly instead. A
// failure to reach the operator's metric group is logged and never fatal
// (spec §7 MetricsSetupFailure).
func eagerNumRecordsInCounter[R any](operator Operator[R], name string, logger *zap.Logger) Counter {
	group, err := operator.MetricGroup()
	if err != nil {
		logger.Warn("operator metric group unavailable, falling back to a local counter", zap.Error(err))
		return &localCounter{}
	}

	counter, err := group.Counter(name)
	if err != nil {
		logger.Warn("failed to register records-in counter, falling back to a local counter", zap.String("counter_name", name), zap.Error(err))
		return &localCounter{}
	}

	return counter
}

// InputProcessor is the live (non-replay) input loop (spec §4.2): it pulls
// BufferOrEvent deliveries from the barrier handler by arrival order, pins
// one deserializer at a time, and dispatches every produced StreamElement to
// the operator/valve under the shared task lock.
type InputProcessor[R any] struct {
	*shutter.Shutter

	deserializers  []RecordDeserializer[R]
	barrierHandler BarrierHandler
	dispatcher     *dispatcher[R]
	recorder       CausalLogRecorder

	currentChannel     int
	pinnedDeserializer RecordDeserializer[R]
	pinnedBuffer       NetworkBuffer
	isFinished         bool

	numRecordsIn Counter

	logger *zap.Logger
	tracer logging.Tracer
}

// NewInputProcessor constructs a live InputProcessor over one deserializer
// per absolute channel index. lock is the externally-owned task mutex shared
// with the operator and every timer callback (spec §5); it is never held
// across barrier-handler or deserializer I/O. recorder may be nil, in which
// case this task does not append to a continuation causal log (e.g. a
// one-shot harness in tests).
func NewInputProcessor[R any](
	deserializers []RecordDeserializer[R],
	barrierHandler BarrierHandler,
	operator Operator[R],
	valve Valve,
	lock *sync.Mutex,
	epochTracker *EpochTracker,
	recorder CausalLogRecorder,
	logger *zap.Logger,
	tracer logging.Tracer,
	opts ...Option,
) *InputProcessor[R] {
	cfg := defaultInputProcessorConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	numRecordsIn := eagerNumRecordsInCounter[R](operator, cfg.RecordsInMetricName, logger)

	return &InputProcessor[R]{
		Shutter:        shutter.New(),
		deserializers:  deserializers,
		barrierHandler: barrierHandler,
		dispatcher:     newDispatcher[R](lock, operator, valve, epochTracker, numRecordsIn),
		recorder:       recorder,
		currentChannel: -1,
		numRecordsIn:   numRecordsIn,
		logger:         logger,
		tracer:         tracer,
	}
}

// IsFinished reports whether ProcessInput has observed end-of-stream.
func (p *InputProcessor[R]) IsFinished() bool {
	return p.isFinished
}

// ProcessInput drives one unit of progress (spec §4.2). It returns true
// while more input may be available and false once the upstream stream is
// definitively finished; once false, it is guaranteed to keep returning
// false (spec §8).
func (p *InputProcessor[R]) ProcessInput(ctx context.Context) (bool, error) {
	if p.isFinished {
		return false, nil
	}

	if p.pinnedDeserializer != nil {
		result, err := p.pinnedDeserializer.GetNextRecord()
		if err != nil {
			return false, fmt.Errorf("get next record on channel %d: %w", p.currentChannel, err)
		}

		if result.BufferConsumed {
			p.recycleDeserializerBuffer()
			p.pinnedDeserializer = nil
		}

		if result.HasElement {
			if err := p.recordIfNeeded(p.currentChannel, result.Element); err != nil {
				return false, err
			}
			if err := p.dispatcher.dispatch(p.withClock(ctx), p.currentChannel, result.Element); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	boe, err := p.barrierHandler.GetNextNonBlocked(ctx)
	if err != nil {
		return false, fmt.Errorf("get next buffer or event: %w", err)
	}

	if boe == nil {
		p.isFinished = true
		if !p.barrierHandler.IsEmpty() {
			return false, &TrailingBarrierDataError{}
		}
		return false, nil
	}

	if boe.IsBuffer() {
		p.currentChannel = boe.Channel
		deserializer := p.deserializers[boe.Channel]
		if err := deserializer.SetNextBuffer(boe.Buffer); err != nil {
			return false, fmt.Errorf("set next buffer on channel %d: %w", boe.Channel, err)
		}
		p.pinnedDeserializer = deserializer
		p.pinnedBuffer = boe.Buffer
		return true, nil
	}

	if boe.Event.Type != EventEndOfPartition {
		return false, &UnexpectedEventError{Channel: boe.Channel, Event: boe.Event.Name}
	}

	if p.tracer.Enabled() {
		p.logger.Debug("ignoring tolerated event", zap.Int("channel", boe.Channel), zap.Stringer("event_type", boe.Event.Type))
	}
	return true, nil
}

// recordIfNeeded appends an Order determinant for elem's channel to the
// continuation causal log, mirroring the force-feeder's recording during
// replay (spec §4.3: "we are recording what we do, even during replay, so
// the log remains continuous" implies the live side was already doing this).
// Only Record-kind elements correspond to an Order determinant.
func (p *InputProcessor[R]) recordIfNeeded(channel int, elem StreamElement[R]) error {
	if p.recorder == nil || elem.Kind != ElementRecord {
		return nil
	}
	if err := p.recorder.RecordOrder(byte(channel)); err != nil {
		return fmt.Errorf("record order determinant: %w", err)
	}
	return nil
}

// withClock attaches this processor's recorder to ctx as a TimeAndRandomSource
// when it is one (i.e. a *DeterminantRecorder rather than a plain append-only
// recorder), so the operator can call Now()/NextRandomInt() during live
// execution and have the result recorded as a determinant.
func (p *InputProcessor[R]) withClock(ctx context.Context) context.Context {
	src, ok := p.recorder.(TimeAndRandomSource)
	if !ok {
		return ctx
	}
	return withTimeAndRandomSource(ctx, src)
}

// recycleDeserializerBuffer recycles the buffer currently pinned to the
// active deserializer exactly once, and is a no-op if already recycled.
func (p *InputProcessor[R]) recycleDeserializerBuffer() {
	if p.pinnedBuffer == nil {
		return
	}
	p.pinnedBuffer.Recycle()
	p.pinnedBuffer = nil
}

// Cleanup recycles any pinned network buffer (at most once), clears every
// deserializer, and cleans up the barrier handler (spec §5 "Cancellation /
// shutdown").
func (p *InputProcessor[R]) Cleanup() error {
	p.recycleDeserializerBuffer()

	for _, d := range p.deserializers {
		d.Clear()
	}

	return p.barrierHandler.Cleanup()
}
