// Package dgstate contains [DagState], the in-memory index of accepted blocks.
//
// DagState is a data structure only; it makes no commit decisions.
// Blocks live in an arena indexed by slot number,
// children are kept as arena index lists,
// and an ordered btree over block references serves round range scans.
package dgstate

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/btree"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/gassert"
)

const btreeDegree = 32

// Config is the configuration for [New].
type Config struct {
	Committee  dgconsensus.Committee
	HashScheme dgconsensus.HashScheme

	// GCDepth is how many rounds below the last committed leader are retained.
	// Zero disables garbage collection.
	GCDepth uint32

	AssertEnv gassert.Env
}

// DagState indexes accepted blocks.
//
// Reads take a shared lock and writes take an exclusive lock,
// so concurrent lookups do not block one another.
// Block values are never modified once accepted.
type DagState struct {
	log *slog.Logger

	committee dgconsensus.Committee
	gcDepth   uint32

	aEnv gassert.Env

	mu sync.RWMutex

	arena []*node
	free  []int

	byRef   map[dgconsensus.BlockRef]int
	ordered *btree.BTreeG[entry]

	highestRound        []uint32
	highestRoundOverall uint32

	lastCommittedRounds      []uint32
	lastCommittedLeaderRound uint32
}

type node struct {
	block     dgconsensus.Block
	children  []int
	committed bool
}

type entry struct {
	ref dgconsensus.BlockRef
	idx int
}

func entryLess(a, b entry) bool {
	return a.ref.Less(b.ref)
}

// New returns a DagState containing only the genesis blocks of the committee.
func New(log *slog.Logger, cfg Config) (*DagState, error) {
	genesis, err := dgconsensus.GenesisBlocks(cfg.Committee, cfg.HashScheme)
	if err != nil {
		return nil, fmt.Errorf("failed to build genesis: %w", err)
	}

	n := cfg.Committee.Size()
	s := &DagState{
		log: log,

		committee: cfg.Committee,
		gcDepth:   cfg.GCDepth,

		aEnv: cfg.AssertEnv,

		byRef:   make(map[dgconsensus.BlockRef]int, 16*n),
		ordered: btree.NewG(btreeDegree, entryLess),

		highestRound:        make([]uint32, n),
		lastCommittedRounds: make([]uint32, n),
	}

	for _, g := range genesis {
		s.insert(g)
	}

	return s, nil
}

// Committee returns the committee the DagState was built for.
func (s *DagState) Committee() dgconsensus.Committee {
	return s.committee
}

// AcceptBlock inserts b.
//
// It is a no-op reporting false if b is already present
// or if b is at or below the GC round.
// If any ancestor above the GC round is unknown,
// it returns a [*dgconsensus.MissingAncestorError] and the state is unchanged.
func (s *DagState) AcceptBlock(b dgconsensus.Block) (accepted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted, err = s.acceptLocked(b)
	if accepted {
		s.checkInvariants()
	}
	return accepted, err
}

// AcceptBlocks sorts blocks into round order and accepts them one at a time.
// It returns the references of newly accepted blocks.
// Blocks whose ancestors are missing are skipped,
// and their errors are collected into a single returned error.
func (s *DagState) AcceptBlocks(blocks []dgconsensus.Block) ([]dgconsensus.BlockRef, error) {
	sorted := slices.Clone(blocks)
	dgconsensus.SortBlocks(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted []dgconsensus.BlockRef
	var missing []error
	for _, b := range sorted {
		ok, err := s.acceptLocked(b)
		if err != nil {
			missing = append(missing, err)
			continue
		}
		if ok {
			accepted = append(accepted, b.Ref())
		}
	}

	if len(accepted) > 0 {
		s.checkInvariants()
	}

	if len(missing) > 0 {
		return accepted, &MultiMissingError{Errs: missing}
	}
	return accepted, nil
}

func (s *DagState) acceptLocked(b dgconsensus.Block) (bool, error) {
	ref := b.Ref()
	if _, ok := s.byRef[ref]; ok {
		return false, nil
	}
	if !s.committee.IsValidIndex(b.Author) {
		return false, fmt.Errorf("block %s has author outside committee of size %d", ref, s.committee.Size())
	}

	gcRound := s.gcRoundLocked()
	if gcRound > 0 && b.Round <= gcRound {
		return false, nil
	}

	var missing []dgconsensus.BlockRef
	for _, a := range b.Ancestors {
		if a.Round <= gcRound && gcRound > 0 {
			// Evicted or never needed.
			continue
		}
		if _, ok := s.byRef[a]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		return false, &dgconsensus.MissingAncestorError{Block: ref, Missing: missing}
	}

	s.insert(b)
	return true, nil
}

// insert adds b unconditionally. The write lock must be held, or s must not be shared yet.
func (s *DagState) insert(b dgconsensus.Block) {
	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.arena[idx] = &node{block: b}
	} else {
		idx = len(s.arena)
		s.arena = append(s.arena, &node{block: b})
	}

	ref := b.Ref()
	s.byRef[ref] = idx
	s.ordered.ReplaceOrInsert(entry{ref: ref, idx: idx})

	for _, a := range b.Ancestors {
		if pi, ok := s.byRef[a]; ok {
			p := s.arena[pi]
			p.children = append(p.children, idx)
		}
	}

	if b.Round > s.highestRound[b.Author] {
		s.highestRound[b.Author] = b.Round
	}
	if b.Round > s.highestRoundOverall {
		s.highestRoundOverall = b.Round
	}
}

// Contains reports whether ref is present.
func (s *DagState) Contains(ref dgconsensus.BlockRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byRef[ref]
	return ok
}

// GetBlock returns the block for ref, if present.
func (s *DagState) GetBlock(ref dgconsensus.BlockRef) (dgconsensus.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byRef[ref]
	if !ok {
		return dgconsensus.Block{}, false
	}
	return s.arena[idx].block, true
}

// GetBlocks returns the blocks for refs, in the same order,
// along with any refs that are not present.
func (s *DagState) GetBlocks(refs []dgconsensus.BlockRef) (found []dgconsensus.Block, missing []dgconsensus.BlockRef) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found = make([]dgconsensus.Block, 0, len(refs))
	for _, r := range refs {
		idx, ok := s.byRef[r]
		if !ok {
			missing = append(missing, r)
			continue
		}
		found = append(found, s.arena[idx].block)
	}
	return found, missing
}

// Ancestors returns the direct ancestor references of ref.
func (s *DagState) Ancestors(ref dgconsensus.BlockRef) ([]dgconsensus.BlockRef, bool) {
	b, ok := s.GetBlock(ref)
	if !ok {
		return nil, false
	}
	return slices.Clone(b.Ancestors), true
}

// Children returns the accepted blocks that directly reference ref, in BlockRef order.
func (s *DagState) Children(ref dgconsensus.BlockRef) ([]dgconsensus.BlockRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byRef[ref]
	if !ok {
		return nil, false
	}

	n := s.arena[idx]
	out := make([]dgconsensus.BlockRef, len(n.children))
	for i, c := range n.children {
		out[i] = s.arena[c].block.Ref()
	}
	slices.SortFunc(out, dgconsensus.BlockRef.Compare)
	return out, true
}

// BlocksInRoundRange returns every block with lo <= round <= hi, in BlockRef order.
func (s *DagState) BlocksInRoundRange(lo, hi uint32) []dgconsensus.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []dgconsensus.Block
	s.ordered.AscendGreaterOrEqual(entry{ref: dgconsensus.BlockRef{Round: lo}}, func(e entry) bool {
		if e.ref.Round > hi {
			return false
		}
		out = append(out, s.arena[e.idx].block)
		return true
	})
	return out
}

// BlocksAtRound returns the blocks at round, in BlockRef order.
func (s *DagState) BlocksAtRound(round uint32) []dgconsensus.Block {
	return s.BlocksInRoundRange(round, round)
}

// BlocksAtSlot returns every block at the slot.
// More than one block means the author equivocated.
func (s *DagState) BlocksAtSlot(slot dgconsensus.Slot) []dgconsensus.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []dgconsensus.Block
	pivot := entry{ref: dgconsensus.BlockRef{Round: slot.Round, Author: slot.Author}}
	s.ordered.AscendGreaterOrEqual(pivot, func(e entry) bool {
		if e.ref.Slot() != slot {
			return false
		}
		out = append(out, s.arena[e.idx].block)
		return true
	})
	return out
}

// HighestAcceptedRound returns the highest round of any accepted block.
func (s *DagState) HighestAcceptedRound() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highestRoundOverall
}

// HighestAcceptedRoundFor returns the highest round accepted from author.
func (s *DagState) HighestAcceptedRoundFor(author dgconsensus.AuthorityIndex) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(author) >= len(s.highestRound) {
		return 0
	}
	return s.highestRound[author]
}

// Len returns the number of blocks currently held, including genesis.
func (s *DagState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byRef)
}

// MultiMissingError collects the missing ancestor errors from [*DagState.AcceptBlocks].
type MultiMissingError struct {
	Errs []error
}

func (e *MultiMissingError) Error() string {
	return fmt.Sprintf("%d block(s) had missing ancestors; first: %v", len(e.Errs), e.Errs[0])
}

func (e *MultiMissingError) Unwrap() []error {
	return e.Errs
}
