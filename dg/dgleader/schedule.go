package dgleader

import (
	"fmt"
	"sync/atomic"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// Schedule holds the current reputation scores
// and elects leaders from them.
//
// Publish is called from the single decision goroutine;
// every other method is safe for concurrent use.
type Schedule struct {
	committee  dgconsensus.Committee
	numLeaders uint32
	swapStake  uint64

	cur atomic.Pointer[snapshot]
}

type snapshot struct {
	scores dgconsensus.ReputationScores
	swap   SwapTable

	// from is the first round this snapshot elects for.
	// Earlier rounds use prev, which never has a prev of its own.
	from uint32
	prev *snapshot
}

// at returns the snapshot in force for round.
func (s *snapshot) at(round uint32) *snapshot {
	if round < s.from && s.prev != nil {
		return s.prev
	}
	return s
}

// NewSchedule returns a Schedule with no scores,
// electing numLeaders leaders per round.
// badNodeStakePercent configures the [SwapTable]; zero disables it.
func NewSchedule(
	c dgconsensus.Committee,
	numLeaders uint32,
	badNodeStakePercent uint64,
) (*Schedule, error) {
	if numLeaders == 0 || int(numLeaders) > c.Size() {
		return nil, fmt.Errorf(
			"leaders per round must be in [1, %d]; got %d", c.Size(), numLeaders,
		)
	}
	if badNodeStakePercent > MaxBadNodeStakePercent {
		return nil, fmt.Errorf(
			"bad node stake threshold %d%% exceeds maximum of %d%%",
			badNodeStakePercent, MaxBadNodeStakePercent,
		)
	}

	s := &Schedule{
		committee:  c,
		numLeaders: numLeaders,
		swapStake:  badNodeStakePercent,
	}
	s.cur.Store(&snapshot{})
	return s, nil
}

// NumLeaders returns the number of leaders per round.
func (s *Schedule) NumLeaders() uint32 {
	return s.numLeaders
}

// Publish makes scores drive elections for fromRound and later rounds.
// Rounds before fromRound keep the scores that were in force before,
// so leaders already decided are elected the same way on every later call.
//
// fromRound must not decrease across calls.
// Publishing again with the same fromRound replaces the latest scores.
func (s *Schedule) Publish(scores dgconsensus.ReputationScores, fromRound uint32) error {
	if !scores.IsEmpty() && len(scores.Scores) != s.committee.Size() {
		return fmt.Errorf(
			"scores have %d entries for committee of size %d",
			len(scores.Scores), s.committee.Size(),
		)
	}

	cur := s.cur.Load()
	if fromRound < cur.from {
		return fmt.Errorf(
			"cannot publish scores from round %d; current scores apply from round %d",
			fromRound, cur.from,
		)
	}

	swap, err := NewSwapTable(s.committee, scores, s.swapStake)
	if err != nil {
		return err
	}

	next := &snapshot{
		scores: scores.Clone(),
		swap:   swap,

		from: fromRound,
	}
	if fromRound == cur.from {
		// cur never elected a round below fromRound, so it is replaced outright.
		next.prev = cur.prev
	} else {
		prev := *cur
		prev.prev = nil
		next.prev = &prev
	}
	s.cur.Store(next)
	return nil
}

// Scores returns a copy of the most recently published scores.
func (s *Schedule) Scores() dgconsensus.ReputationScores {
	return s.cur.Load().scores.Clone()
}

// Leader elects the leader at round and offset
// under the scores in force for round.
func (s *Schedule) Leader(round, offset uint32) dgconsensus.AuthorityIndex {
	snap := s.cur.Load().at(round)
	return electLeaders(s.committee, round, offset+1, snap.scores, snap.swap)[offset]
}

// Leaders returns the slots of every leader at round.
// No two slots share an author.
func (s *Schedule) Leaders(round uint32) []dgconsensus.Slot {
	snap := s.cur.Load().at(round)
	ls := electLeaders(s.committee, round, s.numLeaders, snap.scores, snap.swap)
	out := make([]dgconsensus.Slot, len(ls))
	for o, l := range ls {
		out[o] = dgconsensus.Slot{Round: round, Author: l}
	}
	return out
}
