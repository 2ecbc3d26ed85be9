package dgconsensustest_test

import (
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/stretchr/testify/require"
)

func TestDagBuilder_fullyConnected(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	d := dgconsensustest.NewDagBuilder(fx)
	d.Layers(1, 3).Build()

	blocks := d.AllBlocks()
	require.Len(t, blocks, 12)

	for _, b := range blocks {
		require.Len(t, b.Ancestors, 4)
		for _, a := range b.Ancestors {
			require.Equal(t, b.Round-1, a.Round)
		}
	}

	require.Len(t, d.Blocks(0, 1), 8)
}

func TestDagBuilder_options(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	d := dgconsensustest.NewDagBuilder(fx)

	d.Layer(1).NoLeaderBlock().Build()
	_, ok := d.LeaderBlock(1)
	require.False(t, ok)
	require.Len(t, d.Blocks(1, 1), 3)

	d.Layer(2).Authorities(3).Equivocate(1).Build()
	require.Len(t, d.BlocksAtSlot(dgconsensus.Slot{Round: 2, Author: 3}), 2)

	d.Layer(3).Authorities(0, 1).SkipBlock().Build()
	require.Len(t, d.Blocks(3, 3), 2)

	// Round 3 has authorities 2 and 3; round 4 leader is authority 0.
	d.Layer(4).Build()
	d.Layer(5).NoLeaderLink(4)
	for _, b := range d.Blocks(5, 5) {
		for _, a := range b.Ancestors {
			require.NotEqual(t, dgconsensus.AuthorityIndex(0), a.Author)
		}
		require.Len(t, b.Ancestors, 3)
	}
}

func TestDagBuilder_minAncestorLinks(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(7)
	d := dgconsensustest.NewDagBuilder(fx)
	d.Layer(1).Build()
	d.Layer(2).MinAncestorLinks(true, 42)

	leader, ok := d.LeaderBlock(1)
	require.True(t, ok)

	for _, b := range d.Blocks(2, 2) {
		require.GreaterOrEqual(t, len(b.Ancestors), 5)
		require.Contains(t, b.Ancestors, leader.Ref())
	}
}
