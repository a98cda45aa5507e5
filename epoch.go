package replay

import "go.uber.org/atomic"

// EpochTracker is the monotonically non-decreasing per-task record counter
// (spec §3 "Record counter"). It is incremented exactly once per consumed
// StreamElement regardless of kind, and read concurrently by the replay
// state machine's checkAsyncEvent to decide when an asynchronous determinant
// should fire — hence the atomic rather than mutex-guarded counter.
type EpochTracker struct {
	count atomic.Uint64
}

// NewEpochTracker returns a tracker starting at zero.
func NewEpochTracker() *EpochTracker {
	return &EpochTracker{}
}

// Increment advances the counter by one and returns the new value.
func (e *EpochTracker) Increment() uint64 {
	return e.count.Inc()
}

// Count returns the current counter value without mutating it.
func (e *EpochTracker) Count() uint64 {
	return e.count.Load()
}
