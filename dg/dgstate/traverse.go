package dgstate

import (
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// IsAncestor reports whether anc is in the causal history of desc.
// A block is considered its own ancestor.
func (s *DagState) IsAncestor(desc, anc dgconsensus.BlockRef) bool {
	if desc == anc {
		return true
	}
	if desc.Round <= anc.Round {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := map[dgconsensus.BlockRef]struct{}{desc: {}}
	stack := []dgconsensus.BlockRef{desc}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, ok := s.byRef[cur]
		if !ok {
			continue
		}
		for _, a := range s.arena[idx].block.Ancestors {
			if a == anc {
				return true
			}
			if a.Round <= anc.Round {
				continue
			}
			if _, seen := visited[a]; seen {
				continue
			}
			visited[a] = struct{}{}
			stack = append(stack, a)
		}
	}
	return false
}

// AncestorsAtRound returns the blocks at round that are in the causal history of later,
// in BlockRef order.
// Blocks evicted by garbage collection are not traversed.
func (s *DagState) AncestorsAtRound(later dgconsensus.BlockRef, round uint32) []dgconsensus.Block {
	if later.Round < round {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if later.Round == round {
		if idx, ok := s.byRef[later]; ok {
			return []dgconsensus.Block{s.arena[idx].block}
		}
		return nil
	}

	var out []dgconsensus.Block
	visited := map[dgconsensus.BlockRef]struct{}{later: {}}
	stack := []dgconsensus.BlockRef{later}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, ok := s.byRef[cur]
		if !ok {
			continue
		}
		for _, a := range s.arena[idx].block.Ancestors {
			if a.Round < round {
				continue
			}
			if _, seen := visited[a]; seen {
				continue
			}
			visited[a] = struct{}{}

			if a.Round == round {
				if ai, ok := s.byRef[a]; ok {
					out = append(out, s.arena[ai].block)
				}
				continue
			}
			stack = append(stack, a)
		}
	}

	slices.SortFunc(out, func(a, b dgconsensus.Block) int {
		return a.Ref().Compare(b.Ref())
	})
	return out
}
