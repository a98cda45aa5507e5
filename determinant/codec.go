package determinant

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnknownDeterminantKind is returned by Encode when asked to encode a
// Determinant whose Kind is not one of the five known tags. This is a
// programming error on the caller's part, never a data-corruption issue.
var ErrUnknownDeterminantKind = errors.New("determinant: unknown determinant kind")

// CorruptLogError is returned by DecodeNext/DecodeAll when the byte stream
// contains an unrecognised tag or a truncated payload. The causal log is
// assumed trustworthy at rest; seeing this error means the log itself, or
// the code that wrote it, is broken.
type CorruptLogError struct {
	Offset int
	Reason string
}

func (e *CorruptLogError) Error() string {
	return fmt.Sprintf("determinant: corrupt log at offset %d: %s", e.Offset, e.Reason)
}

func corrupt(offset int, format string, args ...any) error {
	return &CorruptLogError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Encode serialises a single determinant using the fixed, tagged, big-endian
// wire format documented in spec §6:
//
//	Order       : [0x00][channel:u8]
//	RandomEmit  : [0x01][channel:u8]
//	Timestamp   : [0x02][ts:i64]
//	RNG         : [0x03][n:i32]
//	BufferBuilt : [0x04][idUpper:i64][idLower:i64][subpartition:u8][bytes:i32]
//
// The tag byte is always written explicitly; there is no implicit zero-value
// shortcut for Order (see spec §9 on the legacy reference implementation bug).
func Encode(d Determinant) ([]byte, error) {
	switch d.Kind {
	case TagOrder, TagRandomEmit:
		return []byte{byte(d.Kind), d.Channel}, nil

	case TagTimestamp:
		buf := make([]byte, 9)
		buf[0] = byte(d.Kind)
		binary.BigEndian.PutUint64(buf[1:], uint64(d.TimestampMillis))
		return buf, nil

	case TagRNG:
		buf := make([]byte, 5)
		buf[0] = byte(d.Kind)
		binary.BigEndian.PutUint32(buf[1:], uint32(d.RandomInt))
		return buf, nil

	case TagBufferBuilt:
		buf := make([]byte, 1+16+1+4)
		buf[0] = byte(d.Kind)
		binary.BigEndian.PutUint64(buf[1:9], uint64(d.Dataset.Upper))
		binary.BigEndian.PutUint64(buf[9:17], uint64(d.Dataset.Lower))
		buf[17] = d.Subpartition
		binary.BigEndian.PutUint32(buf[18:22], uint32(d.Length))
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownDeterminantKind, byte(d.Kind))
	}
}

// MustEncode is Encode but panics on error; useful in tests and in
// call-sites where the determinant was just constructed with one of the
// Kind-specific builders in determinant.go and therefore cannot fail.
func MustEncode(d Determinant) []byte {
	encoded, err := Encode(d)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Cursor walks a causal log buffer one determinant at a time. It is the
// primitive DecodeNext/DecodeAll are built on, and it is also what the
// replay state machine advances directly (see replaying_state.go) so that it
// can report how many bytes remain without re-decoding from the start.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential decoding starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining returns the number of undecoded bytes left in the cursor.
func (c *Cursor) Remaining() int {
	if c == nil {
		return 0
	}
	return len(c.buf) - c.pos
}

// Len returns the total length of the buffer the cursor was constructed
// with, regardless of how far it has advanced.
func (c *Cursor) Len() int {
	if c == nil {
		return 0
	}
	return len(c.buf)
}

// Consumed returns the number of bytes decoded so far.
func (c *Cursor) Consumed() int {
	if c == nil {
		return 0
	}
	return c.pos
}

// DecodeNext decodes one determinant at the cursor's current position,
// advancing it past the determinant on success. It returns (zero-value,
// false, nil) at a clean end-of-buffer boundary (pos == len(buf)), and a
// *CorruptLogError if the tag is unknown or the payload is truncated.
func (c *Cursor) DecodeNext() (Determinant, bool, error) {
	if c.Remaining() == 0 {
		return Determinant{}, false, nil
	}

	offset := c.pos
	tag := Tag(c.buf[c.pos])

	switch tag {
	case TagOrder, TagRandomEmit:
		if c.Remaining() < 2 {
			return Determinant{}, false, corrupt(offset, "truncated %s determinant: need 2 bytes, have %d", tag, c.Remaining())
		}
		channel := c.buf[c.pos+1]
		c.pos += 2

		if tag == TagOrder {
			return Order(channel), true, nil
		}
		return RandomEmit(channel), true, nil

	case TagTimestamp:
		if c.Remaining() < 9 {
			return Determinant{}, false, corrupt(offset, "truncated Timestamp determinant: need 9 bytes, have %d", c.Remaining())
		}
		ms := int64(binary.BigEndian.Uint64(c.buf[c.pos+1 : c.pos+9]))
		c.pos += 9
		return Timestamp(ms), true, nil

	case TagRNG:
		if c.Remaining() < 5 {
			return Determinant{}, false, corrupt(offset, "truncated RNG determinant: need 5 bytes, have %d", c.Remaining())
		}
		n := int32(binary.BigEndian.Uint32(c.buf[c.pos+1 : c.pos+5]))
		c.pos += 5
		return RNG(n), true, nil

	case TagBufferBuilt:
		if c.Remaining() < 22 {
			return Determinant{}, false, corrupt(offset, "truncated BufferBuilt determinant: need 22 bytes, have %d", c.Remaining())
		}
		upper := int64(binary.BigEndian.Uint64(c.buf[c.pos+1 : c.pos+9]))
		lower := int64(binary.BigEndian.Uint64(c.buf[c.pos+9 : c.pos+17]))
		subpartition := c.buf[c.pos+17]
		length := int32(binary.BigEndian.Uint32(c.buf[c.pos+18 : c.pos+22]))
		c.pos += 22
		return BufferBuilt(DatasetID{Upper: upper, Lower: lower}, subpartition, length), true, nil

	default:
		return Determinant{}, false, corrupt(offset, "unknown determinant tag %d", byte(tag))
	}
}

// DecodeAll decodes every determinant in buf, failing with a *CorruptLogError
// on the first unknown tag or truncated payload.
func DecodeAll(buf []byte) ([]Determinant, error) {
	cursor := NewCursor(buf)

	var out []Determinant
	for {
		d, ok, err := cursor.DecodeNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, d)
	}
}

// EncodeAll concatenates the encodings of every determinant in seq, in order,
// with no framing between them — this is exactly what a causal log looks
// like on the wire.
func EncodeAll(seq []Determinant) ([]byte, error) {
	total := 0
	for _, d := range seq {
		total += d.EncodedLen()
	}

	out := make([]byte, 0, total)
	for _, d := range seq {
		encoded, err := Encode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}
