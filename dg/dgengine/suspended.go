package dgengine

import (
	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// suspendedBlocks holds blocks that arrived before some of their ancestors.
// Each block is released once every ancestor it was waiting on
// has been accepted or has fallen below the GC round.
type suspendedBlocks struct {
	blocks map[dgconsensus.BlockRef]*suspendedBlock

	// Missing ancestor to the suspended blocks waiting on it.
	waiting map[dgconsensus.BlockRef][]dgconsensus.BlockRef
}

type suspendedBlock struct {
	block   dgconsensus.Block
	missing int
}

func newSuspendedBlocks() *suspendedBlocks {
	return &suspendedBlocks{
		blocks:  make(map[dgconsensus.BlockRef]*suspendedBlock),
		waiting: make(map[dgconsensus.BlockRef][]dgconsensus.BlockRef),
	}
}

func (s *suspendedBlocks) Len() int {
	return len(s.blocks)
}

func (s *suspendedBlocks) Contains(ref dgconsensus.BlockRef) bool {
	_, ok := s.blocks[ref]
	return ok
}

// Suspend holds b until every ref in missing has arrived.
// It reports false if b was already suspended.
func (s *suspendedBlocks) Suspend(b dgconsensus.Block, missing []dgconsensus.BlockRef) bool {
	ref := b.Ref()
	if _, ok := s.blocks[ref]; ok {
		return false
	}

	s.blocks[ref] = &suspendedBlock{block: b, missing: len(missing)}
	for _, m := range missing {
		s.waiting[m] = append(s.waiting[m], ref)
	}
	return true
}

// Arrived records that ref is now in DAG state
// and returns, removed from s, the blocks that were waiting on nothing else.
func (s *suspendedBlocks) Arrived(ref dgconsensus.BlockRef) []dgconsensus.Block {
	waiters, ok := s.waiting[ref]
	if !ok {
		return nil
	}
	delete(s.waiting, ref)

	var ready []dgconsensus.Block
	for _, w := range waiters {
		sb, ok := s.blocks[w]
		if !ok {
			// Pruned since it was suspended.
			continue
		}
		sb.missing--
		if sb.missing == 0 {
			delete(s.blocks, w)
			ready = append(ready, sb.block)
		}
	}
	return ready
}

// PruneAtOrBelow discards suspended blocks at or below round,
// which DAG state would no longer accept.
// Missing ancestors at or below round are no longer required,
// so blocks waiting only on those are returned as ready.
func (s *suspendedBlocks) PruneAtOrBelow(round uint32) (dropped int, ready []dgconsensus.Block) {
	for ref := range s.blocks {
		if ref.Round <= round {
			delete(s.blocks, ref)
			dropped++
		}
	}

	for ref := range s.waiting {
		if ref.Round <= round {
			ready = append(ready, s.Arrived(ref)...)
		}
	}

	dgconsensus.SortBlocks(ready)
	return dropped, ready
}
