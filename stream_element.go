package replay

import "fmt"

// ElementKind discriminates the four kinds of StreamElement a record
// deserializer can produce, per spec §3/§4.2.
type ElementKind int

const (
	ElementRecord ElementKind = iota
	ElementWatermark
	ElementStreamStatus
	ElementLatencyMarker
)

func (k ElementKind) String() string {
	switch k {
	case ElementRecord:
		return "Record"
	case ElementWatermark:
		return "Watermark"
	case ElementStreamStatus:
		return "StreamStatus"
	case ElementLatencyMarker:
		return "LatencyMarker"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Watermark is the per-channel progress signal the valve aggregates into a
// monotone output watermark.
type Watermark struct {
	TimestampMillis int64
}

// StreamStatus indicates whether a channel is actively producing records
// (Idle false) or has gone quiet (Idle true); the valve uses this to
// decide whether to keep waiting on a channel's watermark.
type StreamStatus struct {
	Idle bool
}

// LatencyMarker is a timestamped probe injected upstream and forwarded
// through the operator chain to measure end-to-end latency; this package
// does not interpret its contents.
type LatencyMarker struct {
	MarkedTimeMillis int64
	OperatorID       string
	SubtaskIndex     int
}

// StreamElement is the sum type produced by a RecordDeserializer: exactly one
// of the Kind-tagged fields is meaningful. R is the concrete record payload
// type; this package never inspects it.
type StreamElement[R any] struct {
	Kind ElementKind

	Record        R
	Watermark     Watermark
	Status        StreamStatus
	LatencyMarker LatencyMarker

	// EmbeddedCausalLogDelta carries an upstream task's own causal-log delta
	// piggybacked on the element (any kind; the force-feeder merges it
	// regardless of Kind)
	// (spec §4.3: "apply any upstream causal-log deltas embedded in the
	// element to the local causal log"), propagating causal order across an
	// operator chain. Nil when the upstream does not propagate one.
	EmbeddedCausalLogDelta []byte
}

// NewRecordElement builds a Record-kind StreamElement.
func NewRecordElement[R any](r R) StreamElement[R] {
	return StreamElement[R]{Kind: ElementRecord, Record: r}
}

// NewWatermarkElement builds a Watermark-kind StreamElement.
func NewWatermarkElement[R any](wm Watermark) StreamElement[R] {
	return StreamElement[R]{Kind: ElementWatermark, Watermark: wm}
}

// NewStreamStatusElement builds a StreamStatus-kind StreamElement.
func NewStreamStatusElement[R any](status StreamStatus) StreamElement[R] {
	return StreamElement[R]{Kind: ElementStreamStatus, Status: status}
}

// NewLatencyMarkerElement builds a LatencyMarker-kind StreamElement.
func NewLatencyMarkerElement[R any](lm LatencyMarker) StreamElement[R] {
	return StreamElement[R]{Kind: ElementLatencyMarker, LatencyMarker: lm}
}

// DeserializationResult is what RecordDeserializer.GetNextRecord returns for
// a single call: record extraction and buffer-consumption are independent
// signals and may both be set on the same call (spec §4.2 point 3).
type DeserializationResult[R any] struct {
	Element        StreamElement[R]
	HasElement     bool
	BufferConsumed bool
}

// RecordDeserializer is the external, per-channel contract (spec §1: "called,
// not owned") that turns raw network buffers into typed StreamElements. Each
// deserializer owns at most one in-flight network buffer at a time.
type RecordDeserializer[R any] interface {
	// SetNextBuffer hands the deserializer a freshly arrived buffer to pull
	// records from. Must only be called once the previous buffer has been
	// fully consumed.
	SetNextBuffer(buf NetworkBuffer) error

	// GetNextRecord attempts to produce the next StreamElement from the
	// currently pinned buffer.
	GetNextRecord() (DeserializationResult[R], error)

	// Clear releases any state the deserializer holds, called on shutdown.
	Clear()
}
