package replay

import "context"

// Counter is the minimal counter contract the operator's metric group
// exposes; satisfied both by a real metrics counter and by the local
// fallback used when the metric group is unavailable (spec §4.2 point 2).
type Counter interface {
	Inc()
}

// MetricGroup is the external metric-registration contract exposed by the
// operator (spec §6: "getMetricGroup"). Counter returns an error if the
// named counter cannot be registered, which the input processor treats as a
// MetricsSetupFailure (log + fall back to a local counter, never fatal).
type MetricGroup interface {
	Counter(name string) (Counter, error)
}

// Operator is the external collaborator this package drives but does not
// own (spec §1, §6): "exposes processElement, processWatermark,
// processLatencyMarker, setKeyContextElement1". R is the concrete record
// payload type produced by the RecordDeserializer.
type Operator[R any] interface {
	ProcessElement(ctx context.Context, r R) error
	ProcessWatermark(wm Watermark) error
	ProcessLatencyMarker(lm LatencyMarker) error
	SetKeyContextElement1(r R) error
	MetricGroup() (MetricGroup, error)
}

// Valve is the external watermark/stream-status aggregator (spec §1, §6):
// "aggregates per-channel watermarks into a monotone output watermark". Its
// internal aggregation algorithm is out of scope for this package; it is
// consumed purely as an interface and, when it decides to emit, calls back
// into the operator under the same task lock the input processor used to
// call it (spec §4.2 "Valve output").
type Valve interface {
	InputWatermark(wm Watermark, channel int) error
	InputStreamStatus(status StreamStatus, channel int) error
}

// ValveCallbacks is the "single function pair, no dynamic dispatch hierarchy"
// realisation called for in spec §9 of the reference's inner-class callback
// handler: a minimal Valve implementation wires these two functions to the
// operator and its watermark gauge/status maintainer.
type ValveCallbacks struct {
	// HandleWatermark is invoked once the valve has computed a new aggregate
	// output watermark; the caller is expected to set its watermark gauge and
	// call operator.ProcessWatermark under the task lock.
	HandleWatermark func(wm Watermark) error

	// HandleStreamStatus is invoked once the valve toggles the aggregate
	// stream status.
	HandleStreamStatus func(status StreamStatus) error
}
