package replay

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/PSilvestre/Clonos/determinant"
)

// CausalLogRecorder is the local, append-only recording side of the causal
// log — the symmetric counterpart to RecoveryManager's consumption side.
// Every task keeps recording its own non-deterministic decisions, whether it
// is currently live or force-feeding through a replay, so the log stays
// continuous across a subsequent failure (spec §4.3: "we are recording what
// we do, even during replay, so the log remains continuous"). Spec §1 scopes
// log storage, shipping and persistence out; this interface is the one
// seam this package owns.
type CausalLogRecorder interface {
	RecordOrder(channel byte) error
	RecordRandomEmit(channel byte) error
	RecordTimestamp(millis int64) error
	RecordRNG(n int32) error
	RecordBufferBuilt(dataset determinant.DatasetID, subpartition byte, length int32) error

	// MergeUpstreamDelta absorbs a causal-log delta embedded in an inbound
	// record (propagated from an upstream task's own recording) into this
	// task's local log, preserving end-to-end causal ordering across an
	// operator chain.
	MergeUpstreamDelta(delta []byte) error
}

// InMemoryCausalLogRecorder is a minimal CausalLogRecorder that appends
// every recorded determinant, and every merged upstream delta, to one
// growing in-memory buffer. It is what this package's own tests record
// against; a deployment backs CausalLogRecorder with the shipping and
// persistence machinery spec §1 scopes out.
type InMemoryCausalLogRecorder struct {
	mu  sync.Mutex
	buf []byte
}

// NewInMemoryCausalLogRecorder returns an empty recorder.
func NewInMemoryCausalLogRecorder() *InMemoryCausalLogRecorder {
	return &InMemoryCausalLogRecorder{}
}

func (r *InMemoryCausalLogRecorder) append(d determinant.Determinant) error {
	encoded, err := determinant.Encode(d)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.buf = append(r.buf, encoded...)
	r.mu.Unlock()
	return nil
}

func (r *InMemoryCausalLogRecorder) RecordOrder(channel byte) error {
	return r.append(determinant.Order(channel))
}

func (r *InMemoryCausalLogRecorder) RecordRandomEmit(channel byte) error {
	return r.append(determinant.RandomEmit(channel))
}

func (r *InMemoryCausalLogRecorder) RecordTimestamp(millis int64) error {
	return r.append(determinant.Timestamp(millis))
}

func (r *InMemoryCausalLogRecorder) RecordRNG(n int32) error {
	return r.append(determinant.RNG(n))
}

func (r *InMemoryCausalLogRecorder) RecordBufferBuilt(dataset determinant.DatasetID, subpartition byte, length int32) error {
	return r.append(determinant.BufferBuilt(dataset, subpartition, length))
}

func (r *InMemoryCausalLogRecorder) MergeUpstreamDelta(delta []byte) error {
	if len(delta) == 0 {
		return nil
	}

	r.mu.Lock()
	r.buf = append(r.buf, delta...)
	r.mu.Unlock()
	return nil
}

// Bytes returns a copy of the log recorded so far, suitable for handing to
// causal-log shipping (external, out of scope).
func (r *InMemoryCausalLogRecorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// TimeAndRandomSource is the on-demand service an operator consults for wall
// clock time and randomness instead of calling time.Now()/math/rand directly
// (spec §4.4's currentTimeMillis()/nextInt() overrides). Live tasks back it
// with DeterminantRecorder; a replaying task backs it with
// replayTimeAndRandomSource, so a call through this interface returns the
// exact same sequence of values whether the task is running live or
// force-feeding a previously recorded log.
type TimeAndRandomSource interface {
	Now() (int64, error)
	NextRandomInt() (int32, error)
}

// DeterminantRecorder is the live-mode half of the producer/consumer
// symmetry this package keeps across a restart: it wraps a real clock
// (benbjohnson/clock, so tests can substitute a mock the same way the pack's
// own clock-dependent tests do) and a real PRNG, and every value either one
// hands out is also appended to the causal log as the matching determinant,
// via the embedded CausalLogRecorder. This is what makes Timestamp, RNG and
// RandomEmit determinants possible to produce at all during live execution —
// without it only RecordOrder ever had a production caller.
type DeterminantRecorder struct {
	CausalLogRecorder

	clock clock.Clock

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewDeterminantRecorder wraps recorder with a real wall clock and a PRNG
// seeded from it. math/rand is used rather than a third-party generator: no
// repo in the reference pack imports one, and *rand.Rand already gives an
// injectable, lockable source, which is all a recorder needs.
func NewDeterminantRecorder(recorder CausalLogRecorder) *DeterminantRecorder {
	return NewDeterminantRecorderWithClock(recorder, clock.New(), rand.NewSource(time.Now().UnixNano()))
}

// NewDeterminantRecorderWithClock wraps recorder with an explicit clock and
// PRNG source, so a test can substitute clock.NewMock() and a fixed seed to
// get a deterministic, reproducible sequence of recorded values.
func NewDeterminantRecorderWithClock(recorder CausalLogRecorder, c clock.Clock, source rand.Source) *DeterminantRecorder {
	return &DeterminantRecorder{
		CausalLogRecorder: recorder,
		clock:             c,
		rng:               rand.New(source),
	}
}

// Now returns the current wall-clock time in epoch milliseconds and records
// it as a Timestamp determinant (spec §4.4's currentTimeMillis()).
func (d *DeterminantRecorder) Now() (int64, error) {
	millis := d.clock.Now().UnixMilli()
	if err := d.RecordTimestamp(millis); err != nil {
		return 0, fmt.Errorf("determinant recorder: record timestamp: %w", err)
	}
	return millis, nil
}

// NextRandomInt draws the next PRNG value and records it as an RNG
// determinant (spec §4.4's nextInt()).
func (d *DeterminantRecorder) NextRandomInt() (int32, error) {
	d.rngMu.Lock()
	n := d.rng.Int31()
	d.rngMu.Unlock()

	if err := d.RecordRNG(n); err != nil {
		return 0, fmt.Errorf("determinant recorder: record rng: %w", err)
	}
	return n, nil
}

// RandomChannel draws a random channel in [0, channels) for a random-routing
// decision and records it as a RandomEmit determinant.
func (d *DeterminantRecorder) RandomChannel(channels int) (byte, error) {
	d.rngMu.Lock()
	n := d.rng.Intn(channels)
	d.rngMu.Unlock()

	channel := byte(n)
	if err := d.RecordRandomEmit(channel); err != nil {
		return 0, fmt.Errorf("determinant recorder: record random emit: %w", err)
	}
	return channel, nil
}
