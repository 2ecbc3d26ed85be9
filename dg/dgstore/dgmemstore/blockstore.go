// Package dgmemstore holds in-memory implementations of the dgstore interfaces,
// for tests and for simulations that do not need durability.
package dgmemstore

import (
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgstore"
)

type BlockStore struct {
	mu sync.RWMutex

	blocks *btree.BTreeG[dgconsensus.Block]
}

func NewBlockStore() *BlockStore {
	return &BlockStore{
		blocks: btree.NewG(16, func(a, b dgconsensus.Block) bool {
			return a.Ref().Less(b.Ref())
		}),
	}
}

func (s *BlockStore) SaveBlocks(_ context.Context, blocks []dgconsensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range blocks {
		if _, ok := s.blocks.Get(b); ok {
			continue
		}
		s.blocks.ReplaceOrInsert(b.Clone())
	}
	return nil
}

func (s *BlockStore) LoadBlock(_ context.Context, ref dgconsensus.BlockRef) (dgconsensus.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks.Get(dgconsensus.Block{Round: ref.Round, Author: ref.Author, Digest: ref.Digest})
	if !ok {
		return dgconsensus.Block{}, dgstore.ErrBlockNotFound
	}
	return b.Clone(), nil
}

func (s *BlockStore) LoadBlocksInRoundRange(_ context.Context, lo, hi uint32) ([]dgconsensus.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []dgconsensus.Block
	s.blocks.AscendGreaterOrEqual(dgconsensus.Block{Round: lo}, func(b dgconsensus.Block) bool {
		if b.Round > hi {
			return false
		}
		out = append(out, b.Clone())
		return true
	})
	return out, nil
}
