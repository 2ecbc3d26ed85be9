package dgstore

import (
	"context"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// CommitStore persists the commit sequence.
//
// Commit indices are 1-based and must be saved without gaps.
type CommitStore interface {
	// SaveCommit appends c.
	// Its index must be one greater than the last saved commit,
	// or else SaveCommit returns [CommitIndexGapError].
	// Saving a commit identical to one already stored is a no-op;
	// saving a different commit at an existing index returns [OverwriteError].
	SaveCommit(ctx context.Context, c dgconsensus.Commit) error

	// LoadCommit returns the commit at idx,
	// or [ErrCommitNotFound] if none is stored there.
	LoadCommit(ctx context.Context, idx uint32) (dgconsensus.Commit, error)

	// LoadCommitsFrom returns every stored commit with index at least idx,
	// in index order.
	LoadCommitsFrom(ctx context.Context, idx uint32) ([]dgconsensus.Commit, error)

	// LastCommit returns the commit with the highest index,
	// or [ErrStoreUninitialized] if no commit has been saved.
	LastCommit(ctx context.Context) (dgconsensus.Commit, error)
}
