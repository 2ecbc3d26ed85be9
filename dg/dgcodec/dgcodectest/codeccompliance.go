// Package dgcodectest holds a compliance suite for [dgcodec.MarshalCodec] implementations.
package dgcodectest

import (
	"bytes"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgcodec"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/stretchr/testify/require"
)

const determinismTries = 20

// MarshalCodecFactory returns a fresh codec for each subtest.
type MarshalCodecFactory func() dgcodec.MarshalCodec

// TestMarshalCodecCompliance ensures the codec from mcf
// round-trips blocks and commits and encodes deterministically.
func TestMarshalCodecCompliance(t *testing.T, mcf MarshalCodecFactory) {
	t.Run("blocks", func(t *testing.T) {
		t.Parallel()

		fx := dgconsensustest.NewFixture(4)
		d := dgconsensustest.NewDagBuilder(fx)
		d.Payload = func(round uint32, author dgconsensus.AuthorityIndex) []byte {
			return []byte{byte(round), byte(author)}
		}
		d.Layers(1, 2).Build()

		c := mcf()
		for _, want := range append(d.Genesis(), d.AllBlocks()...) {
			enc, err := c.MarshalBlock(want)
			require.NoError(t, err)

			var got dgconsensus.Block
			require.NoError(t, c.UnmarshalBlock(enc, &got))
			require.Equal(t, want.Ref(), got.Ref())
			require.Equal(t, want.Ancestors, got.Ancestors)
			require.Equal(t, want.TimestampMs, got.TimestampMs)
			require.True(t, bytes.Equal(want.Payload, got.Payload))
			require.True(t, bytes.Equal(want.Signature, got.Signature))

			// The decoded block must hash to the same digest.
			dgst, err := fx.HashScheme.Block(got)
			require.NoError(t, err)
			require.Equal(t, want.Digest, dgst)

			for range determinismTries {
				again, err := c.MarshalBlock(want)
				require.NoError(t, err)
				require.Equal(t, enc, again)
			}
		}
	})

	t.Run("commits", func(t *testing.T) {
		t.Parallel()

		fx := dgconsensustest.NewFixture(4)
		d := dgconsensustest.NewDagBuilder(fx)
		d.Layers(1, 2).Build()

		var refs []dgconsensus.BlockRef
		for _, b := range d.Blocks(1, 1) {
			refs = append(refs, b.Ref())
		}
		leader, ok := d.LeaderBlock(1)
		require.True(t, ok)

		want := dgconsensus.Commit{
			Index:       7,
			Leader:      leader.Ref(),
			Rounds:      dgconsensus.RoundRange{Start: 1, End: 1},
			Blocks:      refs,
			TimestampMs: leader.TimestampMs,
		}

		c := mcf()
		enc, err := c.MarshalCommit(want)
		require.NoError(t, err)

		var got dgconsensus.Commit
		require.NoError(t, c.UnmarshalCommit(enc, &got))
		require.True(t, want.Equal(got))
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()

		c := mcf()
		var b dgconsensus.Block
		require.Error(t, c.UnmarshalBlock([]byte("not a block"), &b))

		var cm dgconsensus.Commit
		require.Error(t, c.UnmarshalCommit([]byte("{"), &cm))
	})
}
