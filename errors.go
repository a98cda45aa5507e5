package replay

import (
	"errors"
	"fmt"
)

// ErrBackOffExpired is returned when an in-flight log replay request
// exhausts its retry budget (spec §4.4 "I/O failure is logged, not fatal" —
// but a bounded number of retries is still enforced so a wedged upstream
// cannot retry forever).
var ErrBackOffExpired = errors.New("unable to complete in-flight log request within backoff time limit")

// RetryableError wraps the one genuinely retryable failure this package
// recognises (InFlightLogRequestIO, spec §7): a network failure while
// re-requesting a late channel's in-flight log. Everything else in spec §7's
// table is fatal.
type RetryableError struct {
	original error
}

// NewRetryableError wraps original as retryable. Panics if original is nil.
func NewRetryableError(original error) *RetryableError {
	if original == nil {
		panic(fmt.Errorf("the 'original' argument is mandatory"))
	}

	return &RetryableError{original}
}

func (r *RetryableError) Unwrap() error {
	return r.original
}

func (r *RetryableError) Error() string {
	return fmt.Sprintf("%s (retryable)", r.original)
}

// UnexpectedDeterminantError is raised when a replay consumer expects one
// determinant variant (Order, Timestamp, RNG) and the causal log's next
// determinant is a different variant.
type UnexpectedDeterminantError struct {
	Expected string
	Actual   string
}

func (e *UnexpectedDeterminantError) Error() string {
	return fmt.Sprintf("unexpected determinant: expected %s, got %s", e.Expected, e.Actual)
}

// UnexpectedEventError is raised when a non-EndOfPartition event is observed
// on the buffer/event channel (spec §4.2 point 4, §6).
type UnexpectedEventError struct {
	Channel int
	Event   string
}

func (e *UnexpectedEventError) Error() string {
	return fmt.Sprintf("unexpected event %q on channel %d: only EndOfPartition is tolerated", e.Event, e.Channel)
}

// TrailingBarrierDataError is raised when the barrier handler signals
// end-of-stream but still reports unconsumed data (spec §4.2 point 4).
type TrailingBarrierDataError struct{}

func (e *TrailingBarrierDataError) Error() string {
	return "barrier handler reported end of stream but is not drained"
}

// ReplayLengthMismatchError is raised at finishReplaying/subpartition
// recovery exit when the consumed byte length of a recovery buffer does not
// equal the authoritative log length (spec §3 invariant, §4.4 point 1).
type ReplayLengthMismatchError struct {
	Scope    string
	Consumed int
	Expected int
}

func (e *ReplayLengthMismatchError) Error() string {
	return fmt.Sprintf("replay length mismatch for %s: consumed %d bytes, authoritative log length is %d", e.Scope, e.Consumed, e.Expected)
}

// RecordCountOvershotError is raised when checkAsyncEvent observes the
// record counter has passed an async determinant's scheduled count without
// the determinant having fired (spec §4.4 "checkAsyncEvent").
type RecordCountOvershotError struct {
	ScheduledAt uint64
	Observed    uint64
}

func (e *RecordCountOvershotError) Error() string {
	return fmt.Sprintf("record count overshot: async determinant scheduled at count %d but observed count is %d", e.ScheduledAt, e.Observed)
}

// ValveCallbackError wraps an error returned by the valve, including one
// returned by the operator while handling a valve callback (spec §4.2
// "Callback exceptions are wrapped as runtime errors"). Panics are not
// recovered.
type ValveCallbackError struct {
	original error
}

func wrapValveCallbackError(err error) error {
	if err == nil {
		return nil
	}
	return &ValveCallbackError{original: err}
}

func (e *ValveCallbackError) Unwrap() error {
	return e.original
}

func (e *ValveCallbackError) Error() string {
	return fmt.Sprintf("valve callback failed: %s", e.original)
}
