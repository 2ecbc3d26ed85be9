package dgconsensus

import (
	"github.com/bits-and-blooms/bitset"
)

// StakeAggregator accumulates the stake of distinct authorities.
// Adding the same authority twice counts its stake once.
//
// A StakeAggregator is not safe for concurrent use.
type StakeAggregator struct {
	c     Committee
	seen  *bitset.BitSet
	stake uint64
}

func NewStakeAggregator(c Committee) *StakeAggregator {
	return &StakeAggregator{
		c:    c,
		seen: bitset.New(uint(c.Size())),
	}
}

// Add records author and reports whether it was newly added.
func (a *StakeAggregator) Add(author AuthorityIndex) bool {
	if !a.c.IsValidIndex(author) || a.seen.Test(uint(author)) {
		return false
	}
	a.seen.Set(uint(author))
	a.stake += a.c.Stake(author)
	return true
}

// Contains reports whether author has been added.
func (a *StakeAggregator) Contains(author AuthorityIndex) bool {
	return a.seen.Test(uint(author))
}

func (a *StakeAggregator) Stake() uint64 {
	return a.stake
}

// ReachedQuorum reports whether the accumulated stake is at least 2f+1.
func (a *StakeAggregator) ReachedQuorum() bool {
	return a.stake >= a.c.QuorumThreshold()
}

// ReachedValidity reports whether the accumulated stake is at least f+1.
func (a *StakeAggregator) ReachedValidity() bool {
	return a.stake >= a.c.ValidityThreshold()
}

// Authorities returns the added authorities in ascending index order.
func (a *StakeAggregator) Authorities() []AuthorityIndex {
	out := make([]AuthorityIndex, 0, a.seen.Count())
	for i, ok := a.seen.NextSet(0); ok; i, ok = a.seen.NextSet(i + 1) {
		out = append(out, AuthorityIndex(i))
	}
	return out
}

// Clear resets the aggregator for reuse.
func (a *StakeAggregator) Clear() {
	a.seen.ClearAll()
	a.stake = 0
}
