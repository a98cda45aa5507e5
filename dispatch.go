package replay

import (
	"context"
	"sync"
)

// dispatcher is the small struct "that borrows the operator and lock" called
// for by spec §9, replacing the reference implementation's inner-class
// callback handler. Both the live input processor and the force-feeder share
// exactly this type so that dispatch semantics (what is called, under what
// lock, in what order) can never drift between the two InputLoop
// implementations.
type dispatcher[R any] struct {
	lock         *sync.Mutex
	operator     Operator[R]
	valve        Valve
	epochTracker *EpochTracker
	numRecordsIn Counter
}

func newDispatcher[R any](lock *sync.Mutex, operator Operator[R], valve Valve, epochTracker *EpochTracker, numRecordsIn Counter) *dispatcher[R] {
	return &dispatcher[R]{
		lock:         lock,
		operator:     operator,
		valve:        valve,
		epochTracker: epochTracker,
		numRecordsIn: numRecordsIn,
	}
}

// dispatch acquires the task lock, delivers elem on channel to the operator
// or valve per spec §4.2.1's table, releases the lock, and increments the
// record counter exactly once — regardless of kind. The lock is held during,
// and only during, this call: it must never be held across barrier-handler
// or deserializer I/O (spec §5).
func (d *dispatcher[R]) dispatch(ctx context.Context, channel int, elem StreamElement[R]) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	defer d.epochTracker.Increment()

	switch elem.Kind {
	case ElementWatermark:
		return wrapValveCallbackError(d.valve.InputWatermark(elem.Watermark, channel))

	case ElementStreamStatus:
		return wrapValveCallbackError(d.valve.InputStreamStatus(elem.Status, channel))

	case ElementLatencyMarker:
		return d.operator.ProcessLatencyMarker(elem.LatencyMarker)

	case ElementRecord:
		d.numRecordsIn.Inc()
		if err := d.operator.SetKeyContextElement1(elem.Record); err != nil {
			return err
		}
		return d.operator.ProcessElement(ctx, elem.Record)

	default:
		return nil
	}
}

// localCounter is the fallback Counter substituted when the operator's
// metric group cannot be reached (spec §4.2 point 2, §7 MetricsSetupFailure:
// "log warn, fall back to local counter — never fail").
type localCounter struct {
	value uint64
}

func (c *localCounter) Inc() {
	c.value++
}
