package determinant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		determinant Determinant
		wantLen     int
	}{
		{"order", Order(3), 2},
		{"random_emit", RandomEmit(7), 2},
		{"timestamp", Timestamp(1_700_000_000_000), 9},
		{"rng", RNG(42), 5},
		{"buffer_built", BufferBuilt(DatasetID{Upper: 0x11, Lower: 0x22}, 1, 4096), 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.determinant)
			require.NoError(t, err)
			require.Len(t, encoded, tt.wantLen)
			require.Equal(t, tt.wantLen, tt.determinant.EncodedLen())

			cursor := NewCursor(encoded)
			decoded, ok, err := cursor.DecodeNext()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, tt.determinant, decoded)
			require.Equal(t, 0, cursor.Remaining())
		})
	}
}

// scenario 1 from spec §8: codec round-trip over a concatenated sequence.
func TestDecodeAll_ConcatenatedSequence(t *testing.T) {
	seq := []Determinant{
		Order(3),
		RNG(42),
		Timestamp(1_700_000_000_000),
		BufferBuilt(DatasetID{Upper: 0x11, Lower: 0x22}, 1, 4096),
	}

	encoded, err := EncodeAll(seq)
	require.NoError(t, err)
	require.Len(t, encoded, 2+5+9+22)

	decoded, err := DecodeAll(encoded)
	require.NoError(t, err)
	require.Equal(t, seq, decoded)
}

func TestEncode_UnknownKind(t *testing.T) {
	_, err := Encode(Determinant{Kind: Tag(99)})
	require.ErrorIs(t, err, ErrUnknownDeterminantKind)
}

func TestOrder_TagIsAlwaysWrittenExplicitly(t *testing.T) {
	// Guards against the legacy reference-implementation bug (spec §9): the
	// Order determinant's tag byte must be written explicitly, not left as
	// an implicit zero value that merely happens to match TagOrder.
	encoded := MustEncode(Order(5))
	require.Equal(t, byte(TagOrder), encoded[0])
	require.Equal(t, byte(5), encoded[1])
}

func TestDecodeNext_UnknownTagIsCorruptLog(t *testing.T) {
	buf := []byte{0xFF, 0x01}

	cursor := NewCursor(buf)
	_, _, err := cursor.DecodeNext()

	var corrupt *CorruptLogError
	require.ErrorAs(t, err, &corrupt)
	require.Equal(t, 0, corrupt.Offset)
}

func TestDecodeNext_TruncatedPayloadIsCorruptLog(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"order_missing_channel", []byte{byte(TagOrder)}},
		{"timestamp_truncated", []byte{byte(TagTimestamp), 0x01, 0x02}},
		{"rng_truncated", []byte{byte(TagRNG), 0x01}},
		{"buffer_built_truncated", []byte{byte(TagBufferBuilt), 0x01, 0x02, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor := NewCursor(tt.buf)
			_, _, err := cursor.DecodeNext()

			var corrupt *CorruptLogError
			require.True(t, errors.As(err, &corrupt))
		})
	}
}

func TestDecodeNext_CleanEOF(t *testing.T) {
	cursor := NewCursor(nil)
	d, ok, err := cursor.DecodeNext()

	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Determinant{}, d)
}

func TestCursor_AdvancesIncrementally(t *testing.T) {
	seq := []Determinant{Order(0), Order(1), Order(0)}
	encoded, err := EncodeAll(seq)
	require.NoError(t, err)

	cursor := NewCursor(encoded)
	for i, want := range seq {
		require.Equal(t, len(encoded)-i*2, cursor.Remaining())

		got, ok, err := cursor.DecodeNext()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	require.Equal(t, 0, cursor.Remaining())
	_, ok, err := cursor.DecodeNext()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAsync(t *testing.T) {
	require.True(t, BufferBuilt(DatasetID{}, 0, 0).IsAsync())
	require.False(t, Order(0).IsAsync())
	require.False(t, Timestamp(0).IsAsync())
	require.False(t, RNG(0).IsAsync())
	require.False(t, RandomEmit(0).IsAsync())
}
