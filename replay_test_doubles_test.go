package replay

import (
	"context"
	"sync"
)

// fakeBuffer is the simplest NetworkBuffer: a byte slice plus a count of
// Recycle calls, so tests can assert no buffer is recycled twice (spec §8
// "no network buffer is recycled twice").
type fakeBuffer struct {
	data     []byte
	recycled int
}

func (b *fakeBuffer) Bytes() []byte { return b.data }
func (b *fakeBuffer) Recycle()      { b.recycled++ }

// recordOp is one operator callback observed by fakeOperator, used to assert
// the exact sequence of calls the dispatcher produced.
type recordOp struct {
	kind string
	arg  any
}

// fakeOperator records every callback it receives, in order, under its own
// lock (separate from the task lock under test) so assertions can read back
// the sequence after the fact.
type fakeOperator struct {
	mu   sync.Mutex
	ops  []recordOp
	fail error
}

func (o *fakeOperator) record(kind string, arg any) error {
	o.mu.Lock()
	o.ops = append(o.ops, recordOp{kind: kind, arg: arg})
	o.mu.Unlock()
	return o.fail
}

func (o *fakeOperator) ProcessElement(_ context.Context, r string) error {
	return o.record("element", r)
}

func (o *fakeOperator) ProcessWatermark(wm Watermark) error {
	return o.record("watermark", wm.TimestampMillis)
}

func (o *fakeOperator) ProcessLatencyMarker(lm LatencyMarker) error {
	return o.record("latency_marker", lm)
}

func (o *fakeOperator) SetKeyContextElement1(r string) error {
	return o.record("set_key_context", r)
}

func (o *fakeOperator) MetricGroup() (MetricGroup, error) {
	return nil, errNoMetricGroup
}

func (o *fakeOperator) snapshot() []recordOp {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]recordOp, len(o.ops))
	copy(out, o.ops)
	return out
}

var errNoMetricGroup = fakeError("no metric group wired in tests")

type fakeError string

func (e fakeError) Error() string { return string(e) }

// sliceDeserializer turns a buffer's bytes into one record per byte, in
// order, the simplest possible RecordDeserializer[string] for tests.
type sliceDeserializer struct {
	records []string
	pos     int
	hasBuf  bool
}

func (d *sliceDeserializer) SetNextBuffer(buf NetworkBuffer) error {
	d.records = stringsFromBytes(buf.Bytes())
	d.pos = 0
	d.hasBuf = true
	return nil
}

func (d *sliceDeserializer) GetNextRecord() (DeserializationResult[string], error) {
	if !d.hasBuf {
		return DeserializationResult[string]{}, nil
	}

	if d.pos >= len(d.records) {
		d.hasBuf = false
		return DeserializationResult[string]{BufferConsumed: true}, nil
	}

	r := d.records[d.pos]
	d.pos++

	consumed := d.pos >= len(d.records)
	if consumed {
		d.hasBuf = false
	}

	return DeserializationResult[string]{
		Element:        NewRecordElement[string](r),
		HasElement:     true,
		BufferConsumed: consumed,
	}, nil
}

func (d *sliceDeserializer) Clear() {
	d.hasBuf = false
}

// stringsFromBytes treats each byte as a one-character record name, e.g.
// "ABC" as a buffer produces records "A", "B", "C". Test fixtures use
// single ASCII letters as record identifiers throughout.
func stringsFromBytes(b []byte) []string {
	out := make([]string, len(b))
	for i, c := range b {
		out[i] = string(c)
	}
	return out
}

// elementDeserializer produces a fixed sequence of pre-built
// StreamElements rather than parsing bytes, for watermark/event tests where
// the record payload itself is irrelevant.
type elementDeserializer struct {
	elements []StreamElement[string]
	pos      int
	hasBuf   bool
}

// SetNextBuffer ignores the buffer itself: each delivery maps to exactly one
// pre-built element off the front of the fixed sequence, consumed in full by
// the following GetNextRecord call. This keeps one queued BufferOrEvent
// equal to one element, so tests can reason about dispatch order purely from
// the order buffers were queued.
func (d *elementDeserializer) SetNextBuffer(_ NetworkBuffer) error {
	d.hasBuf = true
	return nil
}

func (d *elementDeserializer) GetNextRecord() (DeserializationResult[string], error) {
	if !d.hasBuf {
		return DeserializationResult[string]{}, nil
	}
	d.hasBuf = false

	if d.pos >= len(d.elements) {
		return DeserializationResult[string]{BufferConsumed: true}, nil
	}

	e := d.elements[d.pos]
	d.pos++

	return DeserializationResult[string]{Element: e, HasElement: true, BufferConsumed: true}, nil
}

func (d *elementDeserializer) Clear() { d.hasBuf = false }

// queueBarrierHandler replays a fixed, ordered queue of BufferOrEvent
// deliveries, then reports end of stream.
type queueBarrierHandler struct {
	queue []BufferOrEvent
	index int
}

func (h *queueBarrierHandler) GetNextNonBlocked(_ context.Context) (*BufferOrEvent, error) {
	if h.index >= len(h.queue) {
		return nil, nil
	}
	boe := h.queue[h.index]
	h.index++
	return &boe, nil
}

func (h *queueBarrierHandler) IsEmpty() bool                        { return h.index >= len(h.queue) }
func (h *queueBarrierHandler) UnblockChannelIfBlocked(_ int)         {}
func (h *queueBarrierHandler) Cleanup() error                       { return nil }
func (h *queueBarrierHandler) AlignmentDurationNanos() int64        { return 0 }
