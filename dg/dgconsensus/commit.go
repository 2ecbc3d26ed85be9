package dgconsensus

import (
	"log/slog"
	"slices"
)

// Commit is one entry of the totally ordered commit sequence.
//
// Indices start at 1 and have no gaps.
// Blocks is the linearized sub-dag: every block newly subsumed by Leader,
// ancestors before descendants, with ties broken by round and then author.
type Commit struct {
	Index uint32

	Leader BlockRef

	// Rounds spans the lowest and highest rounds present in Blocks.
	Rounds RoundRange

	Blocks []BlockRef

	// TimestampMs is the leader block's timestamp.
	TimestampMs uint64
}

// Equal reports whether c and o describe the same commit.
func (c Commit) Equal(o Commit) bool {
	return c.Index == o.Index &&
		c.Leader == o.Leader &&
		c.Rounds == o.Rounds &&
		c.TimestampMs == o.TimestampMs &&
		slices.Equal(c.Blocks, o.Blocks)
}

// Clone returns a copy of c that shares no memory with it.
func (c Commit) Clone() Commit {
	c.Blocks = slices.Clone(c.Blocks)
	return c
}

func (c Commit) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("index", uint64(c.Index)),
		slog.Any("leader", c.Leader),
		slog.Int("n_blocks", len(c.Blocks)),
	)
}

// CommittedSubDag is a commit with its blocks resolved,
// as handed to the execution layer.
type CommittedSubDag struct {
	Commit Commit

	// Blocks are in the same order as Commit.Blocks.
	Blocks []Block
}
