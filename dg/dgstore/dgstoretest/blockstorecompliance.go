// Package dgstoretest contains compliance suites for dgstore implementations.
package dgstoretest

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/stretchr/testify/require"
)

type BlockStoreFactory func(cleanup func(func())) (dgstore.BlockStore, error)

// RequireSameBlock fails t if got is not an equivalent copy of want.
// Nil and empty byte slices are considered equal,
// since not every encoding distinguishes them.
func RequireSameBlock(t *testing.T, want, got dgconsensus.Block) {
	t.Helper()

	require.Equal(t, want.Ref(), got.Ref())
	require.Equal(t, want.TimestampMs, got.TimestampMs)
	require.Equal(t, len(want.Ancestors), len(got.Ancestors))
	for i := range want.Ancestors {
		require.Equal(t, want.Ancestors[i], got.Ancestors[i])
	}
	require.True(t, bytes.Equal(want.Payload, got.Payload), "payload mismatch")
	require.True(t, bytes.Equal(want.Signature, got.Signature), "signature mismatch")
}

func TestBlockStoreCompliance(t *testing.T, f BlockStoreFactory) {
	t.Run("save and load", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		fx := dgconsensustest.NewFixture(4)
		d := dgconsensustest.NewDagBuilder(fx)
		d.Payload = func(round uint32, author dgconsensus.AuthorityIndex) []byte {
			return bytes.Repeat([]byte{byte(round), byte(author)}, 64)
		}
		d.Layers(1, 2).Build()

		all := d.Blocks(0, 2)
		require.NoError(t, s.SaveBlocks(ctx, all))

		for _, want := range all {
			got, err := s.LoadBlock(ctx, want.Ref())
			require.NoError(t, err)
			RequireSameBlock(t, want, got)
		}

		// Saving again is harmless.
		require.NoError(t, s.SaveBlocks(ctx, all[:3]))
	})

	t.Run("missing block", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, err = s.LoadBlock(ctx, dgconsensus.BlockRef{Round: 3, Author: 1})
		require.ErrorIs(t, err, dgstore.ErrBlockNotFound)
	})

	t.Run("round range", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		fx := dgconsensustest.NewFixture(4)
		d := dgconsensustest.NewDagBuilder(fx)
		d.Layers(1, 2).Build()
		d.Layer(3).Authorities(2).Equivocate(1).Build()
		d.Layers(4, 5).Build()

		// Insertion order must not affect range scans.
		all := d.Blocks(0, 5)
		shuffled := append([]dgconsensus.Block(nil), all...)
		rand.New(rand.NewPCG(1, 2)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for _, b := range shuffled {
			require.NoError(t, s.SaveBlocks(ctx, []dgconsensus.Block{b}))
		}

		got, err := s.LoadBlocksInRoundRange(ctx, 2, 4)
		require.NoError(t, err)
		want := d.Blocks(2, 4)
		require.Len(t, got, len(want))
		for i := range want {
			RequireSameBlock(t, want[i], got[i])
		}

		got, err = s.LoadBlocksInRoundRange(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 4)

		got, err = s.LoadBlocksInRoundRange(ctx, 6, 10)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
