// Package determinant implements the tagged binary determinant model used by
// the causal-order replay core: a compact record of a past non-deterministic
// decision (which channel was read, what random value was drawn, what
// timestamp was observed, where an output buffer was cut) that can be
// replayed to reproduce the exact interleaving and ancillary values of a
// prior run.
package determinant

import "fmt"

// Tag identifies which of the five determinant variants a payload holds.
// These values are part of the wire format and MUST NOT be renumbered.
type Tag byte

const (
	TagOrder       Tag = 0
	TagRandomEmit  Tag = 1
	TagTimestamp   Tag = 2
	TagRNG         Tag = 3
	TagBufferBuilt Tag = 4
)

func (t Tag) String() string {
	switch t {
	case TagOrder:
		return "Order"
	case TagRandomEmit:
		return "RandomEmit"
	case TagTimestamp:
		return "Timestamp"
	case TagRNG:
		return "RNG"
	case TagBufferBuilt:
		return "BufferBuilt"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(t))
	}
}

// DatasetID identifies an output result partition's dataset, mirrored from
// the 16-byte (upper/lower int64) identifier used on the wire.
type DatasetID struct {
	Upper int64
	Lower int64
}

// Determinant is the sum type of the five recorded non-deterministic
// decisions. Exactly one of the typed fields is meaningful for a given Kind;
// callers should switch on Kind rather than inspect fields directly.
type Determinant struct {
	Kind Tag

	// Channel holds the absolute channel index for Order and RandomEmit.
	Channel byte

	// TimestampMillis holds the recorded wall-clock value for Timestamp.
	TimestampMillis int64

	// RandomInt holds the recorded PRNG draw for RNG.
	RandomInt int32

	// BufferBuilt fields: which (dataset, subpartition) the buffer was cut
	// on, and its length in bytes.
	Dataset      DatasetID
	Subpartition byte
	Length       int32
}

// Order builds an Order determinant: "the next record was read from channel c".
func Order(channel byte) Determinant {
	return Determinant{Kind: TagOrder, Channel: channel}
}

// RandomEmit builds a RandomEmit determinant: "random-routing selected channel c".
func RandomEmit(channel byte) Determinant {
	return Determinant{Kind: TagRandomEmit, Channel: channel}
}

// Timestamp builds a Timestamp determinant: "currentTimeMillis returned t".
func Timestamp(millis int64) Determinant {
	return Determinant{Kind: TagTimestamp, TimestampMillis: millis}
}

// RNG builds an RNG determinant: "nextInt returned n".
func RNG(n int32) Determinant {
	return Determinant{Kind: TagRNG, RandomInt: n}
}

// BufferBuilt builds a BufferBuilt determinant: "a buffer of length bytes was
// cut on (dataset, subpartition)".
func BufferBuilt(dataset DatasetID, subpartition byte, length int32) Determinant {
	return Determinant{Kind: TagBufferBuilt, Dataset: dataset, Subpartition: subpartition, Length: length}
}

// IsAsync reports whether this determinant is consumed asynchronously by the
// operator/output side (as opposed to Order, which the input processor
// consults synchronously to pick the next channel). Per the data model,
// BufferBuilt determinants are emitted asynchronously by output writers and
// are the only async kind. Timestamp, RNG and RandomEmit are not async: they
// are pulled on demand by explicit replay calls, not scheduled against the
// record count.
func (d Determinant) IsAsync() bool {
	return d.Kind == TagBufferBuilt
}

func (d Determinant) String() string {
	switch d.Kind {
	case TagOrder:
		return fmt.Sprintf("Order(channel=%d)", d.Channel)
	case TagRandomEmit:
		return fmt.Sprintf("RandomEmit(channel=%d)", d.Channel)
	case TagTimestamp:
		return fmt.Sprintf("Timestamp(ms=%d)", d.TimestampMillis)
	case TagRNG:
		return fmt.Sprintf("RNG(n=%d)", d.RandomInt)
	case TagBufferBuilt:
		return fmt.Sprintf("BufferBuilt(dataset=(%d,%d), subpartition=%d, length=%d)", d.Dataset.Upper, d.Dataset.Lower, d.Subpartition, d.Length)
	default:
		return fmt.Sprintf("Unknown(%d)", byte(d.Kind))
	}
}

// EncodedLen returns the number of bytes encode(d) would produce, without
// allocating. One byte for the tag plus the variant's fixed payload size.
func (d Determinant) EncodedLen() int {
	switch d.Kind {
	case TagOrder, TagRandomEmit:
		return 1 + 1
	case TagTimestamp:
		return 1 + 8
	case TagRNG:
		return 1 + 4
	case TagBufferBuilt:
		return 1 + 16 + 1 + 4
	default:
		return 0
	}
}
