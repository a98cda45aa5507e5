package replay

import "github.com/PSilvestre/Clonos/determinant"

// SubpartitionKey identifies one output subpartition of a result partition,
// per spec §3 "subpartitionTable: map<(DatasetId, SubpartitionIndex), ...>".
type SubpartitionKey struct {
	Dataset      determinant.DatasetID
	Subpartition byte
}

// VertexCausalLogDelta is the payload delivered to recovery on restart (spec
// §3). Causal log storage, shipping and persistence are all external
// collaborators; this package only consumes the decoded delta.
type VertexCausalLogDelta struct {
	// MainThreadDelta holds the Order/RNG/Timestamp/RandomEmit determinants
	// for the task thread, in generation order. Nil means an empty
	// main-thread log (spec §9: the reference implementation's null buffer
	// must not be treated as a length-assertion failure).
	MainThreadDelta []byte

	// PartitionDeltas holds the BufferBuilt determinants recorded per output
	// subpartition.
	PartitionDeltas map[SubpartitionKey][]byte
}

// JobCausalLog is the external, authoritative causal-log store (spec §1:
// "out of scope... referenced only by contract"). It is consulted purely to
// validate that a replay consumed exactly as many bytes as were recorded.
type JobCausalLog interface {
	MainThreadLogLength() int
	SubpartitionLogLength(key SubpartitionKey) int
}
