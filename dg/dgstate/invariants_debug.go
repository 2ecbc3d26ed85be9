//go:build debug

package dgstate

import (
	"fmt"
)

// checkInvariants verifies that the arena, the ref map, and the btree agree,
// and that every child link points at a live block referencing its parent.
// The write lock must be held.
func (s *DagState) checkInvariants() {
	if !s.aEnv.Enabled("dgstate.arena") {
		return
	}

	if s.ordered.Len() != len(s.byRef) {
		s.aEnv.HandleAssertionFailure(fmt.Errorf(
			"btree has %d entries but ref map has %d", s.ordered.Len(), len(s.byRef),
		))
		return
	}

	for ref, idx := range s.byRef {
		n := s.arena[idx]
		if n == nil || n.block.Ref() != ref {
			s.aEnv.HandleAssertionFailure(fmt.Errorf("ref %s maps to stale arena slot %d", ref, idx))
			return
		}
		for _, c := range n.children {
			child := s.arena[c]
			if child == nil {
				s.aEnv.HandleAssertionFailure(fmt.Errorf("block %s has evicted child slot %d", ref, c))
				return
			}
			found := false
			for _, a := range child.block.Ancestors {
				if a == ref {
					found = true
					break
				}
			}
			if !found {
				s.aEnv.HandleAssertionFailure(fmt.Errorf(
					"block %s lists child %s which does not reference it", ref, child.block.Ref(),
				))
				return
			}
		}
	}
}
