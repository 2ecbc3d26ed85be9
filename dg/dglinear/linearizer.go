// Package dglinear flattens each committed leader's sub-dag into commit order.
package dglinear

import (
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// DAG is the DAG state the linearizer reads and marks.
// [*dgstate.DagState] satisfies it.
type DAG interface {
	GetBlock(dgconsensus.BlockRef) (dgconsensus.Block, bool)
	IsCommitted(dgconsensus.BlockRef) bool
	LastCommittedRounds() []uint32
	GCRound() uint32

	RecordCommit(dgconsensus.Commit) (missing []dgconsensus.BlockRef)
}

// Linearizer turns committed leaders into [dgconsensus.CommittedSubDag] values
// with consecutive commit indices.
//
// A Linearizer is not safe for concurrent use.
type Linearizer struct {
	log *slog.Logger

	dag DAG

	lastIndex       uint32
	lastTimestampMs uint64
}

// New returns a Linearizer whose next commit has index last.Index+1.
// Pass the zero Commit before the first commit.
func New(log *slog.Logger, dag DAG, last dgconsensus.Commit) *Linearizer {
	return &Linearizer{
		log:             log,
		dag:             dag,
		lastIndex:       last.Index,
		lastTimestampMs: last.TimestampMs,
	}
}

// LastCommittedIndex returns the index of the last commit produced,
// or of the commit the Linearizer was created from.
func (l *Linearizer) LastCommittedIndex() uint32 {
	return l.lastIndex
}

// Linearize returns the blocks newly committed by leader, in commit order.
//
// The sub-dag is every block in leader's causal history that is not yet committed,
// not at or below its author's last committed round,
// and above the GC round.
// Blocks are ordered by round, then author, then digest;
// since ancestors are always from lower rounds, the order is topological.
//
// Linearize does not modify DAG state.
// It returns a [*dgconsensus.InvariantViolationError] if leader is already committed.
func (l *Linearizer) Linearize(leader dgconsensus.Block) ([]dgconsensus.Block, error) {
	if l.dag.IsCommitted(leader.Ref()) {
		return nil, &dgconsensus.InvariantViolationError{
			Reason: fmt.Sprintf("leader %s is already committed", leader.Ref()),
		}
	}

	gcRound := l.dag.GCRound()
	lastRounds := l.dag.LastCommittedRounds()

	seen := map[dgconsensus.BlockRef]struct{}{leader.Ref(): {}}
	stack := []dgconsensus.Block{leader}
	var out []dgconsensus.Block

	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, b)

		for _, a := range b.Ancestors {
			if _, ok := seen[a]; ok {
				continue
			}
			if a.Round <= gcRound {
				continue
			}
			if int(a.Author) < len(lastRounds) && a.Round <= lastRounds[a.Author] {
				continue
			}
			if l.dag.IsCommitted(a) {
				continue
			}

			ab, ok := l.dag.GetBlock(a)
			if !ok {
				return nil, &dgconsensus.InvariantViolationError{
					Reason: fmt.Sprintf(
						"ancestor %s of %s missing while linearizing leader %s",
						a, b.Ref(), leader.Ref(),
					),
				}
			}
			seen[a] = struct{}{}
			stack = append(stack, ab)
		}
	}

	dgconsensus.SortBlocks(out)
	return out, nil
}

// HandleCommit linearizes each leader in order and records the resulting commits
// as committed in DAG state, so that each block appears in exactly one commit.
func (l *Linearizer) HandleCommit(leaders []dgconsensus.Block) ([]dgconsensus.CommittedSubDag, error) {
	out := make([]dgconsensus.CommittedSubDag, 0, len(leaders))
	for _, leader := range leaders {
		blocks, err := l.Linearize(leader)
		if err != nil {
			return out, err
		}

		c := dgconsensus.Commit{
			Index:       l.lastIndex + 1,
			Leader:      leader.Ref(),
			Blocks:      make([]dgconsensus.BlockRef, len(blocks)),
			TimestampMs: max(leader.TimestampMs, l.lastTimestampMs),
		}
		c.Rounds.Start = blocks[0].Round
		c.Rounds.End = blocks[len(blocks)-1].Round
		for i, b := range blocks {
			c.Blocks[i] = b.Ref()
		}

		if missing := l.dag.RecordCommit(c); len(missing) > 0 {
			return out, &dgconsensus.InvariantViolationError{
				Reason: fmt.Sprintf("commit %d blocks vanished before recording: %v", c.Index, missing),
			}
		}

		l.lastIndex = c.Index
		l.lastTimestampMs = c.TimestampMs

		l.log.Debug(
			"Linearized commit",
			"commit", c,
			"n_blocks", len(blocks),
		)

		out = append(out, dgconsensus.CommittedSubDag{Commit: c, Blocks: blocks})
	}
	return out, nil
}
