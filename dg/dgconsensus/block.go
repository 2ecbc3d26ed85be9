package dgconsensus

import (
	"errors"
	"fmt"
	"slices"
)

// Block is a vertex of the DAG.
//
// The Digest field must match what the configured [HashScheme] computes for the block;
// that is checked upstream by a [BlockVerifier] before the block reaches DAG state.
type Block struct {
	Round  uint32
	Author AuthorityIndex

	// TimestampMs is the author's claimed creation time in milliseconds.
	// It is not trusted for ordering.
	TimestampMs uint64

	// Ancestors are references to blocks in strictly lower rounds,
	// at most one per author.
	Ancestors []BlockRef

	// Payload is opaque to the consensus core.
	Payload []byte

	Signature []byte

	Digest Digest
}

// Ref returns the identity of b.
func (b Block) Ref() BlockRef {
	return BlockRef{Round: b.Round, Author: b.Author, Digest: b.Digest}
}

// Slot returns the (round, author) of b.
func (b Block) Slot() Slot {
	return Slot{Round: b.Round, Author: b.Author}
}

// IsGenesis reports whether b is a round zero block.
func (b Block) IsGenesis() bool {
	return b.Round == 0
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	b.Ancestors = slices.Clone(b.Ancestors)
	b.Payload = slices.Clone(b.Payload)
	b.Signature = slices.Clone(b.Signature)
	return b
}

// ValidateAncestors checks the structural rules for ancestor references:
// genesis blocks have none, and every other block references
// only strictly lower rounds and at most one block per author.
func (b Block) ValidateAncestors() error {
	if b.Round == 0 {
		if len(b.Ancestors) > 0 {
			return errors.New("genesis block must not have ancestors")
		}
		return nil
	}

	if len(b.Ancestors) == 0 {
		return fmt.Errorf("block %s has no ancestors", b.Ref())
	}

	seen := make(map[AuthorityIndex]struct{}, len(b.Ancestors))
	for _, a := range b.Ancestors {
		if a.Round >= b.Round {
			return fmt.Errorf(
				"block %s references ancestor %s from a round that is not lower", b.Ref(), a,
			)
		}
		if _, ok := seen[a.Author]; ok {
			return fmt.Errorf(
				"block %s references more than one block from author %d", b.Ref(), a.Author,
			)
		}
		seen[a.Author] = struct{}{}
	}
	return nil
}

// GenesisBlocks returns the round zero block of every authority in c.
// Genesis blocks carry no payload, timestamp, or signature,
// so every process derives identical genesis digests.
func GenesisBlocks(c Committee, hs HashScheme) ([]Block, error) {
	out := make([]Block, c.Size())
	for i := range out {
		b := Block{Author: AuthorityIndex(i)}
		d, err := hs.Block(b)
		if err != nil {
			return nil, fmt.Errorf("failed to hash genesis block for author %d: %w", i, err)
		}
		b.Digest = d
		out[i] = b
	}
	return out, nil
}

// SortBlocks sorts blocks in BlockRef order,
// which satisfies the ancestors-before-descendants requirement of DAG state.
func SortBlocks(blocks []Block) {
	slices.SortFunc(blocks, func(a, b Block) int {
		return a.Ref().Compare(b.Ref())
	})
}
