package dgstore

import (
	"context"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// BlockStore persists accepted blocks.
type BlockStore interface {
	// SaveBlocks stores blocks.
	// Saving a block that is already stored is not an error.
	SaveBlocks(ctx context.Context, blocks []dgconsensus.Block) error

	// LoadBlock returns the block with the given reference,
	// or [ErrBlockNotFound].
	LoadBlock(ctx context.Context, ref dgconsensus.BlockRef) (dgconsensus.Block, error)

	// LoadBlocksInRoundRange returns every stored block with round in [lo, hi],
	// in BlockRef order.
	LoadBlocksInRoundRange(ctx context.Context, lo, hi uint32) ([]dgconsensus.Block, error)
}
