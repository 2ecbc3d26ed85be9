package dgleader

import (
	"fmt"
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgscore"
)

// MaxBadNodeStakePercent bounds the share of stake a [SwapTable] may mark as bad.
const MaxBadNodeStakePercent = 33

// SwapTable replaces leaders from the lowest-scoring authorities
// with leaders from the highest-scoring ones.
//
// The zero value swaps nothing.
type SwapTable struct {
	good []dgconsensus.AuthorityIndex
	bad  []dgconsensus.AuthorityIndex

	cr dgconsensus.CommitRange
}

// NewSwapTable marks the top and bottom authorities by score as good and bad,
// each group taking at most stakePercent of the total stake.
// A zero stakePercent disables swapping.
func NewSwapTable(
	c dgconsensus.Committee,
	scores dgconsensus.ReputationScores,
	stakePercent uint64,
) (SwapTable, error) {
	if stakePercent > MaxBadNodeStakePercent {
		return SwapTable{}, fmt.Errorf(
			"bad node stake threshold %d%% exceeds maximum of %d%%",
			stakePercent, MaxBadNodeStakePercent,
		)
	}
	if stakePercent == 0 || scores.IsEmpty() {
		return SwapTable{}, nil
	}
	if len(scores.Scores) != c.Size() {
		return SwapTable{}, fmt.Errorf(
			"scores have %d entries for committee of size %d", len(scores.Scores), c.Size(),
		)
	}

	ranked := dgscore.AuthoritiesByScoreDesc(scores)
	limit := c.TotalStake() * stakePercent / 100

	t := SwapTable{
		good: takeWithinStake(c, ranked, limit),
		cr:   scores.CommitRange,
	}

	slices.Reverse(ranked)
	t.bad = takeWithinStake(c, ranked, limit)

	return t, nil
}

func takeWithinStake(c dgconsensus.Committee, ranked []dgscore.AuthorityScore, limit uint64) []dgconsensus.AuthorityIndex {
	var out []dgconsensus.AuthorityIndex
	var sum uint64
	for _, a := range ranked {
		s := c.Stake(a.Author)
		if sum+s > limit {
			break
		}
		sum += s
		out = append(out, a.Author)
	}
	return out
}

// Swap returns the replacement for leader,
// or leader itself if it is not marked bad.
// Replacements are drawn from the good authorities not in taken,
// the leaders already elected at lower offsets of round.
// If every good authority is taken, leader is kept.
func (t SwapTable) Swap(
	leader dgconsensus.AuthorityIndex,
	round, offset uint32,
	taken []dgconsensus.AuthorityIndex,
) dgconsensus.AuthorityIndex {
	if len(t.good) == 0 || !slices.Contains(t.bad, leader) {
		return leader
	}

	cands := make([]dgconsensus.AuthorityIndex, 0, len(t.good))
	for _, g := range t.good {
		if !slices.Contains(taken, g) {
			cands = append(cands, g)
		}
	}
	if len(cands) == 0 {
		return leader
	}
	return cands[electionRand(round, offset, t.cr).IntN(len(cands))]
}

// Good returns the authorities eligible as replacements.
func (t SwapTable) Good() []dgconsensus.AuthorityIndex {
	return slices.Clone(t.good)
}

// Bad returns the authorities that are replaced when elected.
func (t SwapTable) Bad() []dgconsensus.AuthorityIndex {
	return slices.Clone(t.bad)
}
