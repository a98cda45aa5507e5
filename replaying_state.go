package replay

import (
	"context"

	"github.com/PSilvestre/Clonos/determinant"
)

// scheduledDeterminant pairs a decoded determinant with the record count it
// is scheduled against, for the subset of determinants that fire
// asynchronously (spec §3: "Async determinants carry the record count at
// which they were emitted; during replay an async event fires when the
// counter reaches its stored value").
//
// The wire format (determinant.Encode) never serialises a record count: it
// is recovered positionally instead. targetRecordCount for a non-Order
// determinant equals the number of Order determinants that precede it in
// the main-thread log, which is exactly the record count the live run's
// EpochTracker held at the moment the determinant was recorded (every Order
// determinant corresponds to one dispatched record, one-for-one).
type scheduledDeterminant struct {
	det               determinant.Determinant
	targetRecordCount uint64
}

// replayingState is the force-feeder-facing half of recovery (spec §4.4
// "ReplayingState entry/exit"). It owns the main-thread determinant cursor
// and prepares one determinant ahead of every consume, so replayNextChannel
// and friends only ever inspect an already-decoded value.
type replayingState struct {
	cursor     *determinant.Cursor
	orderCount uint64

	next     *scheduledDeterminant
	finished bool

	onExhausted func() error
}

func newReplayingState(cursor *determinant.Cursor, onExhausted func() error) *replayingState {
	return &replayingState{cursor: cursor, onExhausted: onExhausted}
}

// prepareNext decodes the next determinant off the cursor into s.next. On a
// clean end-of-buffer it calls onExhausted exactly once (the transition out
// of replaying, spec §4.4 point 1) and leaves s.next nil thereafter.
func (s *replayingState) prepareNext() error {
	d, ok, err := s.cursor.DecodeNext()
	if err != nil {
		return err
	}

	if !ok {
		s.next = nil
		if !s.finished {
			s.finished = true
			return s.onExhausted()
		}
		return nil
	}

	scheduled := &scheduledDeterminant{det: d}
	if d.Kind == determinant.TagOrder {
		s.next = scheduled
		s.orderCount++
		return nil
	}

	scheduled.targetRecordCount = s.orderCount
	s.next = scheduled
	return nil
}

func (s *replayingState) actualKindDescription() string {
	if s.next == nil {
		return "end of main-thread log"
	}
	return s.next.det.Kind.String()
}

// replayNextChannel implements spec §4.4's replayNextChannel: the next
// determinant must be Order; its channel is returned and the cursor
// advances.
func (s *replayingState) replayNextChannel() (byte, error) {
	if s.next == nil || s.next.det.Kind != determinant.TagOrder {
		return 0, &UnexpectedDeterminantError{Expected: determinant.TagOrder.String(), Actual: s.actualKindDescription()}
	}
	channel := s.next.det.Channel
	if err := s.prepareNext(); err != nil {
		return 0, err
	}
	return channel, nil
}

// replayNextTimestamp implements spec §4.4's replayNextTimestamp: the next
// determinant must be Timestamp.
func (s *replayingState) replayNextTimestamp() (int64, error) {
	if s.next == nil || s.next.det.Kind != determinant.TagTimestamp {
		return 0, &UnexpectedDeterminantError{Expected: determinant.TagTimestamp.String(), Actual: s.actualKindDescription()}
	}
	ts := s.next.det.TimestampMillis
	if err := s.prepareNext(); err != nil {
		return 0, err
	}
	return ts, nil
}

// replayRandomInt implements spec §4.4's replayRandomInt: the next
// determinant must be RNG.
func (s *replayingState) replayRandomInt() (int32, error) {
	if s.next == nil || s.next.det.Kind != determinant.TagRNG {
		return 0, &UnexpectedDeterminantError{Expected: determinant.TagRNG.String(), Actual: s.actualKindDescription()}
	}
	n := s.next.det.RandomInt
	if err := s.prepareNext(); err != nil {
		return 0, err
	}
	return n, nil
}

// checkAsyncEvent implements spec §4.4's checkAsyncEvent: while the next
// determinant is an asynchronous one, compare the live record counter
// against its scheduled count. Equal fires it (advancing past it first, then
// invoking action, since firing may itself depend on further determinants
// having already been prepared). Less means "not yet" and returns cleanly;
// greater is a correctness violation (the record counter raced ahead of an
// async determinant that was never fired).
func (s *replayingState) checkAsyncEvent(ctx context.Context, epochTracker *EpochTracker, action AsyncActionHandler) error {
	for s.next != nil && s.next.det.IsAsync() {
		current := epochTracker.Count()
		target := s.next.targetRecordCount

		if current > target {
			return &RecordCountOvershotError{ScheduledAt: target, Observed: current}
		}

		if current < target {
			return nil
		}

		fired := s.next.det
		if err := s.prepareNext(); err != nil {
			return err
		}
		if action != nil {
			if err := action(ctx, fired); err != nil {
				return err
			}
		}
		AsyncDeterminantsFiredCount.Inc()
	}
	return nil
}
