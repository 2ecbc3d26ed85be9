package dgsqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgcodec/dgjson"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/dg/dgstore/dgstoretest"
	"github.com/gordian-engine/gdag/dgsqlite"
	"github.com/stretchr/testify/require"
)

func newInMem(t *testing.T, cleanup func(func())) (*dgsqlite.Store, error) {
	s, err := dgsqlite.NewInMemStore(context.Background(), dgjson.MarshalCodec{})
	if err != nil {
		return nil, err
	}
	cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s, nil
}

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := dgsqlite.NewInMemStore(context.Background(), dgjson.MarshalCodec{})
	require.NoError(t, err)
	require.NotNil(t, s)

	// Helpful output in the simplest test, if there is uncertainty which type was built.
	t.Logf("Tests are for build type %s", s.BuildType)

	require.NoError(t, s.Close())
}

func TestBlockStoreCompliance(t *testing.T) {
	t.Parallel()

	dgstoretest.TestBlockStoreCompliance(t, func(cleanup func(func())) (dgstore.BlockStore, error) {
		return newInMem(t, cleanup)
	})
}

func TestCommitStoreCompliance(t *testing.T) {
	t.Parallel()

	dgstoretest.TestCommitStoreCompliance(t, func(cleanup func(func())) (dgstore.CommitStore, error) {
		return newInMem(t, cleanup)
	})
}

func TestOnDiskStore_reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gdag.sqlite")

	fx := dgconsensustest.NewFixture(4)
	d := dgconsensustest.NewDagBuilder(fx)
	d.Layers(1, 3).Build()
	lb, ok := d.LeaderBlock(1)
	require.True(t, ok)

	c := dgconsensus.Commit{
		Index:       1,
		Leader:      lb.Ref(),
		Rounds:      dgconsensus.RoundRange{Start: 1, End: 1},
		Blocks:      []dgconsensus.BlockRef{lb.Ref()},
		TimestampMs: lb.TimestampMs,
	}

	s, err := dgsqlite.NewOnDiskStore(ctx, path, dgjson.MarshalCodec{})
	require.NoError(t, err)
	require.NoError(t, s.SaveBlocks(ctx, d.Blocks(0, 3)))
	require.NoError(t, s.SaveCommit(ctx, c))
	require.NoError(t, s.Close())

	// Migrations are idempotent on an existing database,
	// and the data survives.
	s, err = dgsqlite.NewOnDiskStore(ctx, path, dgjson.MarshalCodec{})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	last, err := s.LastCommit(ctx)
	require.NoError(t, err)
	require.True(t, c.Equal(last))

	got, err := s.LoadBlocksInRoundRange(ctx, 1, 3)
	require.NoError(t, err)
	want := d.Blocks(1, 3)
	require.Len(t, got, len(want))
	for i := range want {
		dgstoretest.RequireSameBlock(t, want[i], got[i])
	}

	// A second load is served from the cache and still returns an independent copy.
	b1, err := s.LoadBlock(ctx, lb.Ref())
	require.NoError(t, err)
	b1.Ancestors[0] = dgconsensus.BlockRef{}
	b2, err := s.LoadBlock(ctx, lb.Ref())
	require.NoError(t, err)
	dgstoretest.RequireSameBlock(t, lb, b2)
}
