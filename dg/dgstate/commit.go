package dgstate

import (
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// IsCommitted reports whether ref has been included in a commit.
// Unknown blocks report false.
func (s *DagState) IsCommitted(ref dgconsensus.BlockRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byRef[ref]
	return ok && s.arena[idx].committed
}

// SetCommitted marks ref as committed and advances its author's
// last committed round watermark.
// It reports false if ref is unknown or was already committed.
func (s *DagState) SetCommitted(ref dgconsensus.BlockRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setCommittedLocked(ref)
}

func (s *DagState) setCommittedLocked(ref dgconsensus.BlockRef) bool {
	idx, ok := s.byRef[ref]
	if !ok {
		return false
	}
	n := s.arena[idx]
	if n.committed {
		return false
	}
	n.committed = true

	if ref.Round > s.lastCommittedRounds[ref.Author] {
		s.lastCommittedRounds[ref.Author] = ref.Round
	}
	return true
}

// RecordCommit marks every block of c as committed
// and advances the last committed leader round, which moves the GC round.
// It returns the refs in c that were not present.
func (s *DagState) RecordCommit(c dgconsensus.Commit) (missing []dgconsensus.BlockRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range c.Blocks {
		if _, ok := s.byRef[r]; !ok {
			missing = append(missing, r)
			continue
		}
		s.setCommittedLocked(r)
	}

	if c.Leader.Round > s.lastCommittedLeaderRound {
		s.lastCommittedLeaderRound = c.Leader.Round
	}
	return missing
}

// LastCommittedRounds returns, per authority, the highest round
// of any of its blocks included in a commit.
func (s *DagState) LastCommittedRounds() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lastCommittedRounds)
}

// LastCommittedLeaderRound returns the round of the most recent committed leader.
func (s *DagState) LastCommittedLeaderRound() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCommittedLeaderRound
}

// GCRound returns the round at or below which blocks are no longer needed:
// the last committed leader round minus the GC depth.
// It is zero while garbage collection is disabled or has not started.
func (s *DagState) GCRound() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gcRoundLocked()
}

func (s *DagState) gcRoundLocked() uint32 {
	if s.gcDepth == 0 || s.lastCommittedLeaderRound <= s.gcDepth {
		return 0
	}
	return s.lastCommittedLeaderRound - s.gcDepth
}

// EvictBelow removes blocks at or below round,
// clamped to the current GC round so that blocks an undecided leader
// could still depend on are never evicted.
// It is idempotent and returns the number of blocks removed.
func (s *DagState) EvictBelow(round uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := min(round, s.gcRoundLocked())
	if limit == 0 {
		return 0
	}

	var doomed []entry
	s.ordered.Ascend(func(e entry) bool {
		if e.ref.Round > limit {
			return false
		}
		doomed = append(doomed, e)
		return true
	})

	for _, e := range doomed {
		s.ordered.Delete(e)
		delete(s.byRef, e.ref)
		s.arena[e.idx] = nil
		s.free = append(s.free, e.idx)
	}

	if len(doomed) > 0 {
		s.log.Debug("Evicted blocks", "through_round", limit, "n", len(doomed))
		s.checkInvariants()
	}
	return len(doomed)
}
