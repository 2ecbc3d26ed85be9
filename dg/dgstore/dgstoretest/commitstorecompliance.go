package dgstoretest

import (
	"context"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/stretchr/testify/require"
)

type CommitStoreFactory func(cleanup func(func())) (dgstore.CommitStore, error)

// sampleCommits returns n commits over a fully connected DAG,
// one per round starting at round 1, each holding only its leader.
func sampleCommits(n int) []dgconsensus.Commit {
	fx := dgconsensustest.NewFixture(4)
	d := dgconsensustest.NewDagBuilder(fx)
	d.Layers(1, uint32(n)).Build()

	out := make([]dgconsensus.Commit, n)
	for i := range out {
		r := uint32(i + 1)
		lb, ok := d.LeaderBlock(r)
		if !ok {
			panic("missing leader block")
		}
		out[i] = dgconsensus.Commit{
			Index:       r,
			Leader:      lb.Ref(),
			Rounds:      dgconsensus.RoundRange{Start: r, End: r},
			Blocks:      []dgconsensus.BlockRef{lb.Ref()},
			TimestampMs: lb.TimestampMs,
		}
	}
	return out
}

func requireSameCommits(t *testing.T, want, got []dgconsensus.Commit) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Truef(t, want[i].Equal(got[i]), "commit %d: want %v, got %v", i, want[i], got[i])
	}
}

func TestCommitStoreCompliance(t *testing.T, f CommitStoreFactory) {
	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, err = s.LastCommit(ctx)
		require.ErrorIs(t, err, dgstore.ErrStoreUninitialized)

		cs, err := s.LoadCommitsFrom(ctx, 1)
		require.NoError(t, err)
		require.Empty(t, cs)

		_, err = s.LoadCommit(ctx, 1)
		require.ErrorIs(t, err, dgstore.ErrCommitNotFound)
	})

	t.Run("append and load", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		cs := sampleCommits(5)
		for _, c := range cs {
			require.NoError(t, s.SaveCommit(ctx, c))
		}

		last, err := s.LastCommit(ctx)
		require.NoError(t, err)
		require.True(t, cs[4].Equal(last))

		got, err := s.LoadCommitsFrom(ctx, 1)
		require.NoError(t, err)
		requireSameCommits(t, cs, got)

		got, err = s.LoadCommitsFrom(ctx, 4)
		require.NoError(t, err)
		requireSameCommits(t, cs[3:], got)

		got, err = s.LoadCommitsFrom(ctx, 6)
		require.NoError(t, err)
		require.Empty(t, got)

		for _, c := range cs {
			one, err := s.LoadCommit(ctx, c.Index)
			require.NoError(t, err)
			require.Truef(t, c.Equal(one), "commit %d: want %v, got %v", c.Index, c, one)
		}
		for _, idx := range []uint32{0, 6} {
			_, err := s.LoadCommit(ctx, idx)
			require.ErrorIs(t, err, dgstore.ErrCommitNotFound)
		}
	})

	t.Run("gaps and overwrites", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		cs := sampleCommits(3)

		// Index 0 and index 2 are both gaps on an empty store.
		bad := cs[0]
		bad.Index = 0
		require.ErrorIs(t, s.SaveCommit(ctx, bad), dgstore.CommitIndexGapError{Want: 1, Got: 0})
		require.ErrorIs(t, s.SaveCommit(ctx, cs[1]), dgstore.CommitIndexGapError{Want: 1, Got: 2})

		require.NoError(t, s.SaveCommit(ctx, cs[0]))
		require.NoError(t, s.SaveCommit(ctx, cs[1]))

		// Identical resave is fine.
		require.NoError(t, s.SaveCommit(ctx, cs[1]))

		// A different commit at an existing index is not.
		changed := cs[1].Clone()
		changed.TimestampMs++
		var ow dgstore.OverwriteError
		require.ErrorAs(t, s.SaveCommit(ctx, changed), &ow)

		require.ErrorIs(t, s.SaveCommit(ctx, dgconsensus.Commit{Index: 9}), dgstore.CommitIndexGapError{Want: 3, Got: 9})

		last, err := s.LastCommit(ctx)
		require.NoError(t, err)
		require.Equal(t, uint32(2), last.Index)
	})
}
