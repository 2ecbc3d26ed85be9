// Package dgcommit decides, for each leader slot, whether the leader is committed or skipped.
//
// A [BaseCommitter] applies the decision rule to the leader rounds of one wave schedule.
// Within a wave of length w starting at leader round r,
// round r+1 is the voting round and round r+w-1 is the decision round.
// A voting-round block votes for the leader if the leader block is in its causal history.
// A decision-round block certifies the leader
// if its ancestors include a quorum of stake voting for the leader.
//
// A leader is directly committed when a quorum of decision-round blocks certify it,
// and directly skipped when a quorum of voting-round blocks do not link to its slot at all.
// Leaders left undecided are resolved indirectly
// from the causal history of a later committed leader, the anchor.
//
// The [UniversalCommitter] runs one BaseCommitter per round offset within a wave
// (so every round has a leader) and per leader offset within a round,
// and returns decisions in strict slot order.
package dgcommit

import (
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// MinWaveLength is the smallest wave that has distinct leader, voting, and decision rounds.
const MinWaveLength = 3

// DefaultWaveLength is the wave length used when none is configured.
const DefaultWaveLength = MinWaveLength

// DAG is the read view of accepted blocks the committer decides over.
// [*dgstate.DagState] satisfies it.
type DAG interface {
	Committee() dgconsensus.Committee
	GetBlock(dgconsensus.BlockRef) (dgconsensus.Block, bool)
	BlocksAtRound(round uint32) []dgconsensus.Block
	BlocksAtSlot(dgconsensus.Slot) []dgconsensus.Block
	AncestorsAtRound(later dgconsensus.BlockRef, round uint32) []dgconsensus.Block
	HighestAcceptedRound() uint32
}

// LeaderElector elects the leader authority at a round and leader offset.
// [*dgleader.Schedule] satisfies it.
type LeaderElector interface {
	Leader(round, offset uint32) dgconsensus.AuthorityIndex
	NumLeaders() uint32
}

// BaseCommitterOptions configures a [BaseCommitter].
type BaseCommitterOptions struct {
	// WaveLength is the number of rounds in a wave, at least MinWaveLength.
	WaveLength uint32

	// RoundOffset shifts the wave schedule,
	// so that leader rounds are RoundOffset, RoundOffset+WaveLength, and so on.
	RoundOffset uint32

	// LeaderOffset selects which of a round's leaders this committer decides.
	LeaderOffset uint32
}

// BaseCommitter decides the leaders of one wave schedule.
type BaseCommitter struct {
	log *slog.Logger

	dag    DAG
	leader LeaderElector
	opts   BaseCommitterOptions
}

func NewBaseCommitter(
	log *slog.Logger,
	dag DAG,
	leader LeaderElector,
	opts BaseCommitterOptions,
) *BaseCommitter {
	if opts.WaveLength < MinWaveLength {
		panic(fmt.Errorf(
			"BUG: wave length must be at least %d; got %d", MinWaveLength, opts.WaveLength,
		))
	}
	return &BaseCommitter{
		log:    log,
		dag:    dag,
		leader: leader,
		opts:   opts,
	}
}

func (c *BaseCommitter) String() string {
	return fmt.Sprintf(
		"BaseCommitter(wave=%d, round_offset=%d, leader_offset=%d)",
		c.opts.WaveLength, c.opts.RoundOffset, c.opts.LeaderOffset,
	)
}

// ElectLeader returns the leader slot at round,
// or false if round is not a leader round for this committer.
func (c *BaseCommitter) ElectLeader(round uint32) (dgconsensus.Slot, bool) {
	if round < c.opts.RoundOffset {
		return dgconsensus.Slot{}, false
	}
	wave := c.waveNumber(round)
	if c.leaderRound(wave) != round {
		return dgconsensus.Slot{}, false
	}
	return dgconsensus.Slot{
		Round:  round,
		Author: c.leader.Leader(round, c.opts.LeaderOffset),
	}, true
}

// TryDirectDecide attempts to decide the leader at slot
// using only the voting and decision rounds of its own wave.
//
// It panics with a [*dgconsensus.InvariantViolationError]
// if more than one block in the slot is certified.
func (c *BaseCommitter) TryDirectDecide(slot dgconsensus.Slot) LeaderStatus {
	votingRound := slot.Round + 1
	if c.enoughLeaderBlame(votingRound, slot) {
		return skip(slot)
	}

	decisionRound := c.decisionRound(c.waveNumber(slot.Round))

	var certified []dgconsensus.Block
	for _, lb := range c.dag.BlocksAtSlot(slot) {
		if c.enoughLeaderSupport(decisionRound, lb) {
			certified = append(certified, lb)
		}
	}

	switch len(certified) {
	case 0:
		return undecided(slot)
	case 1:
		return commit(certified[0])
	default:
		panic(&dgconsensus.InvariantViolationError{
			Reason: fmt.Sprintf(
				"%s: %d certified blocks for leader slot %s (%s and %s)",
				c, len(certified), slot, certified[0].Ref(), certified[1].Ref(),
			),
		})
	}
}

// TryIndirectDecide attempts to decide the leader at slot from anchors,
// the statuses of later leaders in ascending slot order.
//
// The first committed anchor at least a wave after slot decides:
// the leader is committed if the anchor's causal history at the decision round
// holds a certificate for one of the slot's blocks, and skipped otherwise.
// Skipped anchors are passed over, and an undecided anchor leaves the leader undecided.
func (c *BaseCommitter) TryIndirectDecide(slot dgconsensus.Slot, anchors []LeaderStatus) LeaderStatus {
	for _, a := range anchors {
		if a.Slot.Round < slot.Round+c.opts.WaveLength {
			continue
		}
		switch a.Kind {
		case Commit:
			return c.decideFromAnchor(a.Block, slot)
		case Skip:
			continue
		case Undecided:
			return undecided(slot)
		}
	}
	return undecided(slot)
}

func (c *BaseCommitter) decideFromAnchor(anchor dgconsensus.Block, slot dgconsensus.Slot) LeaderStatus {
	decisionRound := c.decisionRound(c.waveNumber(slot.Round))
	potentialCerts := c.dag.AncestorsAtRound(anchor.Ref(), decisionRound)

	var certified []dgconsensus.Block
	for _, lb := range c.dag.BlocksAtSlot(slot) {
		votes := map[dgconsensus.BlockRef]bool{}
		for _, pc := range potentialCerts {
			if c.isCertificate(pc, lb, votes) {
				certified = append(certified, lb)
				break
			}
		}
	}

	switch len(certified) {
	case 0:
		return skip(slot)
	case 1:
		return commit(certified[0])
	default:
		panic(&dgconsensus.InvariantViolationError{
			Reason: fmt.Sprintf(
				"%s: anchor %s certifies %d blocks for leader slot %s",
				c, anchor.Ref(), len(certified), slot,
			),
		})
	}
}

func (c *BaseCommitter) waveNumber(round uint32) uint32 {
	return (round - c.opts.RoundOffset) / c.opts.WaveLength
}

func (c *BaseCommitter) leaderRound(wave uint32) uint32 {
	return wave*c.opts.WaveLength + c.opts.RoundOffset
}

func (c *BaseCommitter) decisionRound(wave uint32) uint32 {
	return wave*c.opts.WaveLength + c.opts.WaveLength - 1 + c.opts.RoundOffset
}

// enoughLeaderBlame reports whether a quorum of voting-round blocks
// carry no direct link to slot.
func (c *BaseCommitter) enoughLeaderBlame(votingRound uint32, slot dgconsensus.Slot) bool {
	blame := dgconsensus.NewStakeAggregator(c.dag.Committee())
	for _, vb := range c.dag.BlocksAtRound(votingRound) {
		linked := false
		for _, a := range vb.Ancestors {
			if a.Slot() == slot {
				linked = true
				break
			}
		}
		if linked {
			continue
		}
		blame.Add(vb.Author)
		if blame.ReachedQuorum() {
			return true
		}
	}
	return false
}

// enoughLeaderSupport reports whether a quorum of decision-round blocks certify leader.
func (c *BaseCommitter) enoughLeaderSupport(decisionRound uint32, leader dgconsensus.Block) bool {
	decisionBlocks := c.dag.BlocksAtRound(decisionRound)

	present := dgconsensus.NewStakeAggregator(c.dag.Committee())
	for _, b := range decisionBlocks {
		present.Add(b.Author)
	}
	if !present.ReachedQuorum() {
		return false
	}

	certs := dgconsensus.NewStakeAggregator(c.dag.Committee())
	votes := map[dgconsensus.BlockRef]bool{}
	for _, db := range decisionBlocks {
		if !c.isCertificate(db, leader, votes) {
			continue
		}
		certs.Add(db.Author)
		if certs.ReachedQuorum() {
			return true
		}
	}
	return false
}

// isCertificate reports whether the ancestors of cert include a quorum of votes for leader.
// votes memoizes vote checks across calls for the same leader.
func (c *BaseCommitter) isCertificate(
	cert, leader dgconsensus.Block, votes map[dgconsensus.BlockRef]bool,
) bool {
	agg := dgconsensus.NewStakeAggregator(c.dag.Committee())
	for _, ref := range cert.Ancestors {
		isVote, ok := votes[ref]
		if !ok {
			if pv, found := c.dag.GetBlock(ref); found {
				isVote = c.isVote(pv, leader)
			}
			votes[ref] = isVote
		}
		if !isVote {
			continue
		}
		agg.Add(ref.Author)
		if agg.ReachedQuorum() {
			return true
		}
	}
	return false
}

// isVote reports whether the first block at the leader's slot
// found in the history of vote is leader itself.
// Each voter therefore supports at most one block per slot,
// even when the slot's author equivocated.
func (c *BaseCommitter) isVote(vote, leader dgconsensus.Block) bool {
	got, ok := c.findSupportedBlock(leader.Slot(), vote, map[dgconsensus.BlockRef]struct{}{})
	return ok && got == leader.Ref()
}

func (c *BaseCommitter) findSupportedBlock(
	slot dgconsensus.Slot, from dgconsensus.Block, visited map[dgconsensus.BlockRef]struct{},
) (dgconsensus.BlockRef, bool) {
	if from.Round < slot.Round {
		return dgconsensus.BlockRef{}, false
	}
	for _, a := range from.Ancestors {
		if a.Slot() == slot {
			return a, true
		}
		if a.Round <= slot.Round {
			continue
		}
		if _, seen := visited[a]; seen {
			continue
		}
		visited[a] = struct{}{}

		ab, ok := c.dag.GetBlock(a)
		if !ok {
			continue
		}
		if got, ok := c.findSupportedBlock(slot, ab, visited); ok {
			return got, true
		}
	}
	return dgconsensus.BlockRef{}, false
}
