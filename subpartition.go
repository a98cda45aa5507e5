package replay

import "context"

// PipelinedSubpartition is the external output-side collaborator (spec §1:
// "out of scope... referenced only by contract") that owns one output
// channel of a result partition. The recovery manager drives it through
// exactly the calls spec §4.4.1 names.
type PipelinedSubpartition interface {
	// MarkRecoveringInFlight flags the subpartition so the network layer
	// reports no data to downstream pulls while in-flight buffers are being
	// rebuilt.
	MarkRecoveringInFlight()

	// ClearRecoveringInFlight undoes MarkRecoveringInFlight once rebuilding
	// is complete.
	ClearRecoveringInFlight()

	// NotifyDataAvailable signals downstream that the subpartition may now
	// be pulled from again.
	NotifyDataAvailable()

	// RebuildBuffer instructs the subpartition to rebuild and re-log a
	// buffer of the given byte length, per one BufferBuilt determinant.
	RebuildBuffer(length int) error

	// RequestReplay honors a late in-flight log replay request, skipping
	// buffersToSkip buffers already held locally.
	RequestReplay(ctx context.Context, checkpointID uint64, buffersToSkip int) error
}

// InFlightLogRequestEvent is sent to the upstream producer when a
// late-arriving channel needs its in-flight buffers resent (spec §4.4
// "notifyNewInputChannel during replay").
type InFlightLogRequestEvent struct {
	Partition     SubpartitionKey
	CurrentEpoch  uint64
	BuffersToSkip int
}
