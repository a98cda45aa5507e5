package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobg/go-generics/v2/slices"
	"github.com/streamingfast/logging"
	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

// ForceFeederInputProcessor is the replay-mode input driver (spec §4.3):
// same external contract as InputProcessor, but the next channel to read is
// chosen by consulting the recovery manager's Order determinant stream
// instead of by buffer arrival order. Because upstream may redeliver
// buffers in a different arrival order than the original run, each
// channel's deserializer can be fed ahead of when it is needed; buffers that
// arrive for a channel other than the one currently awaited are queued.
type ForceFeederInputProcessor[R any] struct {
	*shutter.Shutter

	deserializers []RecordDeserializer[R]
	hasBuffer     []bool
	pinnedBuffer  []NetworkBuffer
	pending       map[int][]NetworkBuffer

	barrierHandler BarrierHandler
	dispatcher     *dispatcher[R]
	recovery       *RecoveryManager
	recorder       CausalLogRecorder

	awaitingChannel int
	isFinished      bool

	numRecordsIn Counter

	logger *zap.Logger
	tracer logging.Tracer
}

// NewForceFeederInputProcessor constructs a replay-mode input processor.
// recovery must already be in its Replaying phase (spec §4.4's EnterReplaying
// having completed) before ProcessInput is called. recorder may be nil, in
// which case this task does not itself record a continuation log (e.g. a
// pure replay harness in tests).
func NewForceFeederInputProcessor[R any](
	deserializers []RecordDeserializer[R],
	barrierHandler BarrierHandler,
	operator Operator[R],
	valve Valve,
	lock *sync.Mutex,
	epochTracker *EpochTracker,
	recovery *RecoveryManager,
	recorder CausalLogRecorder,
	logger *zap.Logger,
	tracer logging.Tracer,
	opts ...Option,
) *ForceFeederInputProcessor[R] {
	cfg := defaultInputProcessorConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	numRecordsIn := eagerNumRecordsInCounter[R](operator, cfg.RecordsInMetricName, logger)

	return &ForceFeederInputProcessor[R]{
		Shutter:         shutter.New(),
		deserializers:   deserializers,
		hasBuffer:       make([]bool, len(deserializers)),
		pinnedBuffer:    make([]NetworkBuffer, len(deserializers)),
		pending:         make(map[int][]NetworkBuffer),
		barrierHandler:  barrierHandler,
		dispatcher:      newDispatcher[R](lock, operator, valve, epochTracker, numRecordsIn),
		recovery:        recovery,
		recorder:        recorder,
		awaitingChannel: -1,
		numRecordsIn:    numRecordsIn,
		logger:          logger,
		tracer:          tracer,
	}
}

// IsFinished reports whether ProcessInput has observed end-of-stream.
func (f *ForceFeederInputProcessor[R]) IsFinished() bool {
	return f.isFinished
}

// ProcessInput drives one unit of replay progress (spec §4.3). It returns
// true while more replay input may be available, and false once the
// upstream stream is definitively finished.
func (f *ForceFeederInputProcessor[R]) ProcessInput(ctx context.Context) (bool, error) {
	if f.isFinished {
		return false, nil
	}

	for {
		if f.awaitingChannel == -1 {
			channel, err := f.recovery.ReplayNextChannel()
			if err != nil {
				return false, err
			}
			f.awaitingChannel = int(channel)
		}

		channel := f.awaitingChannel

		if f.hasBuffer[channel] {
			result, err := f.deserializers[channel].GetNextRecord()
			if err != nil {
				return false, fmt.Errorf("get next record on channel %d: %w", channel, err)
			}

			if result.BufferConsumed {
				f.recycleChannelBuffer(channel)
				f.feedNextQueuedBuffer(channel)
			}

			if result.HasElement {
				isRecord, err := f.dispatchReplayElement(ctx, channel, result.Element)
				if err != nil {
					return false, err
				}
				if isRecord {
					f.awaitingChannel = -1
					if err := f.recovery.CheckAsyncEvent(ctx); err != nil {
						return false, err
					}
					return true, nil
				}
				continue
			}
		}

		boe, err := f.barrierHandler.GetNextNonBlocked(ctx)
		if err != nil {
			return false, fmt.Errorf("get next buffer or event: %w", err)
		}

		if boe == nil {
			f.isFinished = true
			if !f.barrierHandler.IsEmpty() {
				return false, &TrailingBarrierDataError{}
			}
			return false, nil
		}

		if boe.IsBuffer() {
			if err := f.acceptBuffer(boe.Channel, boe.Buffer); err != nil {
				return false, err
			}
			continue
		}

		if boe.Event.Type != EventEndOfPartition {
			return false, &UnexpectedEventError{Channel: boe.Channel, Event: boe.Event.Name}
		}

		if f.tracer.Enabled() {
			f.logger.Debug("ignoring tolerated event during replay", zap.Int("channel", boe.Channel), zap.Stringer("event_type", boe.Event.Type))
		}
	}
}

// dispatchReplayElement applies any embedded upstream delta, records an
// Order determinant for records (spec §4.3: "we are recording what we do,
// even during replay, so the log remains continuous"), and dispatches under
// the task lock uniformly for every kind (spec §9: "implementers should
// take the lock uniformly for simplicity"). It reports whether elem was a
// Record.
func (f *ForceFeederInputProcessor[R]) dispatchReplayElement(ctx context.Context, channel int, elem StreamElement[R]) (bool, error) {
	if f.recorder != nil && len(elem.EmbeddedCausalLogDelta) > 0 {
		if err := f.recorder.MergeUpstreamDelta(elem.EmbeddedCausalLogDelta); err != nil {
			return false, fmt.Errorf("merge upstream causal-log delta: %w", err)
		}
	}

	if elem.Kind == ElementRecord && f.recorder != nil {
		if err := f.recorder.RecordOrder(byte(channel)); err != nil {
			return false, fmt.Errorf("record order determinant: %w", err)
		}
	}

	ctx = withTimeAndRandomSource(ctx, replayTimeAndRandomSource{recovery: f.recovery})
	if err := f.dispatcher.dispatch(ctx, channel, elem); err != nil {
		return false, err
	}

	return elem.Kind == ElementRecord, nil
}

// acceptBuffer feeds buf to channel's deserializer immediately if it is
// idle, or queues it otherwise (spec §4.3's rationale: upstream may deliver
// buffers in a different arrival order than the original run).
func (f *ForceFeederInputProcessor[R]) acceptBuffer(channel int, buf NetworkBuffer) error {
	if !f.hasBuffer[channel] {
		if err := f.deserializers[channel].SetNextBuffer(buf); err != nil {
			return fmt.Errorf("set next buffer on channel %d: %w", channel, err)
		}
		f.hasBuffer[channel] = true
		f.pinnedBuffer[channel] = buf
		return nil
	}

	f.pending[channel] = append(f.pending[channel], buf)
	return nil
}

func (f *ForceFeederInputProcessor[R]) feedNextQueuedBuffer(channel int) {
	queue := f.pending[channel]
	if len(queue) == 0 {
		f.hasBuffer[channel] = false
		return
	}

	next := queue[0]
	f.pending[channel] = queue[1:]
	if err := f.deserializers[channel].SetNextBuffer(next); err != nil {
		f.logger.Warn("failed to feed queued buffer", zap.Int("channel", channel), zap.Error(err))
		f.hasBuffer[channel] = false
		return
	}
	f.hasBuffer[channel] = true
	f.pinnedBuffer[channel] = next
}

func (f *ForceFeederInputProcessor[R]) recycleChannelBuffer(channel int) {
	if f.pinnedBuffer[channel] == nil {
		return
	}
	f.pinnedBuffer[channel].Recycle()
	f.pinnedBuffer[channel] = nil
}

// Cleanup recycles every channel's pinned and queued buffers (each at most
// once), clears every deserializer, and cleans up the barrier handler.
func (f *ForceFeederInputProcessor[R]) Cleanup() error {
	for channel := range f.deserializers {
		f.recycleChannelBuffer(channel)
		slices.Each(f.pending[channel], func(buf NetworkBuffer) { buf.Recycle() })
		f.pending[channel] = nil
	}

	for _, d := range f.deserializers {
		d.Clear()
	}

	return f.barrierHandler.Cleanup()
}
