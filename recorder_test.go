package replay

import (
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/PSilvestre/Clonos/determinant"
)

func TestInMemoryCausalLogRecorder_RecordsEachVariant(t *testing.T) {
	r := NewInMemoryCausalLogRecorder()

	require.NoError(t, r.RecordOrder(3))
	require.NoError(t, r.RecordRandomEmit(1))
	require.NoError(t, r.RecordTimestamp(1_700_000_000_000))
	require.NoError(t, r.RecordRNG(42))
	require.NoError(t, r.RecordBufferBuilt(determinant.DatasetID{Upper: 1, Lower: 2}, 0, 256))

	decoded, err := determinant.DecodeAll(r.Bytes())
	require.NoError(t, err)
	require.Equal(t, []determinant.Determinant{
		determinant.Order(3),
		determinant.RandomEmit(1),
		determinant.Timestamp(1_700_000_000_000),
		determinant.RNG(42),
		determinant.BufferBuilt(determinant.DatasetID{Upper: 1, Lower: 2}, 0, 256),
	}, decoded)
}

func TestInMemoryCausalLogRecorder_MergeUpstreamDelta(t *testing.T) {
	r := NewInMemoryCausalLogRecorder()
	require.NoError(t, r.RecordOrder(0))

	upstream, err := determinant.EncodeAll([]determinant.Determinant{determinant.Order(1), determinant.RNG(7)})
	require.NoError(t, err)

	require.NoError(t, r.MergeUpstreamDelta(upstream))
	require.NoError(t, r.RecordOrder(0))

	decoded, err := determinant.DecodeAll(r.Bytes())
	require.NoError(t, err)
	require.Equal(t, []determinant.Determinant{
		determinant.Order(0),
		determinant.Order(1),
		determinant.RNG(7),
		determinant.Order(0),
	}, decoded)
}

func TestInMemoryCausalLogRecorder_MergeEmptyDeltaIsNoOp(t *testing.T) {
	r := NewInMemoryCausalLogRecorder()
	require.NoError(t, r.MergeUpstreamDelta(nil))
	require.Empty(t, r.Bytes())
}

func TestInMemoryCausalLogRecorder_BytesReturnsDefensiveCopy(t *testing.T) {
	r := NewInMemoryCausalLogRecorder()
	require.NoError(t, r.RecordOrder(0))

	out := r.Bytes()
	out[0] = 0xFF

	require.NotEqual(t, out, r.Bytes())
}

// TestDeterminantRecorder_NowReturnsAndRecordsTheClockValue confirms Now()
// both hands back the mocked clock's current time and appends it as a
// Timestamp determinant to the wrapped log, the producer half of the
// symmetry replayNextTimestamp consumes on the other side of a restart.
func TestDeterminantRecorder_NowReturnsAndRecordsTheClockValue(t *testing.T) {
	inner := NewInMemoryCausalLogRecorder()
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))

	d := NewDeterminantRecorderWithClock(inner, mock, rand.NewSource(1))

	millis, err := d.Now()
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000_000), millis)

	mock.Add(250 * time.Millisecond)
	millis2, err := d.Now()
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000_250), millis2)

	decoded, err := determinant.DecodeAll(inner.Bytes())
	require.NoError(t, err)
	require.Equal(t, []determinant.Determinant{
		determinant.Timestamp(1_700_000_000_000),
		determinant.Timestamp(1_700_000_000_250),
	}, decoded)
}

// TestDeterminantRecorder_NextRandomIntIsRecordedAsRNG confirms NextRandomInt
// appends exactly the value it returns, so replaying nextInt() later
// reproduces this exact draw rather than a fresh, different one.
func TestDeterminantRecorder_NextRandomIntIsRecordedAsRNG(t *testing.T) {
	inner := NewInMemoryCausalLogRecorder()
	d := NewDeterminantRecorderWithClock(inner, clock.New(), rand.NewSource(42))

	n, err := d.NextRandomInt()
	require.NoError(t, err)

	decoded, err := determinant.DecodeAll(inner.Bytes())
	require.NoError(t, err)
	require.Equal(t, []determinant.Determinant{determinant.RNG(n)}, decoded)
}

// TestDeterminantRecorder_RandomChannelIsRecordedAsRandomEmit confirms a
// random-routing decision is both bounded to [0, channels) and recorded as
// the matching RandomEmit determinant.
func TestDeterminantRecorder_RandomChannelIsRecordedAsRandomEmit(t *testing.T) {
	inner := NewInMemoryCausalLogRecorder()
	d := NewDeterminantRecorderWithClock(inner, clock.New(), rand.NewSource(7))

	channel, err := d.RandomChannel(4)
	require.NoError(t, err)
	require.Less(t, channel, byte(4))

	decoded, err := determinant.DecodeAll(inner.Bytes())
	require.NoError(t, err)
	require.Equal(t, []determinant.Determinant{determinant.RandomEmit(channel)}, decoded)
}

// TestDeterminantRecorder_SatisfiesCausalLogRecorder confirms the embedding
// still forwards the plain recorder surface (e.g. RecordOrder), so a
// DeterminantRecorder can be passed anywhere a CausalLogRecorder is expected.
func TestDeterminantRecorder_SatisfiesCausalLogRecorder(t *testing.T) {
	inner := NewInMemoryCausalLogRecorder()
	d := NewDeterminantRecorderWithClock(inner, clock.New(), rand.NewSource(1))

	var _ CausalLogRecorder = d
	require.NoError(t, d.RecordOrder(2))

	decoded, err := determinant.DecodeAll(inner.Bytes())
	require.NoError(t, err)
	require.Equal(t, []determinant.Determinant{determinant.Order(2)}, decoded)
}
