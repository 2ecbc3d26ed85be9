package dgconsensus_test

import (
	"slices"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/stretchr/testify/require"
)

func TestBlockRef_order(t *testing.T) {
	t.Parallel()

	d := func(b byte) dgconsensus.Digest {
		var x dgconsensus.Digest
		x[0] = b
		return x
	}

	refs := []dgconsensus.BlockRef{
		{Round: 2, Author: 0, Digest: d(1)},
		{Round: 1, Author: 3, Digest: d(0)},
		{Round: 1, Author: 1, Digest: d(9)},
		{Round: 1, Author: 1, Digest: d(2)},
	}
	slices.SortFunc(refs, dgconsensus.BlockRef.Compare)

	require.Equal(t, []dgconsensus.BlockRef{
		{Round: 1, Author: 1, Digest: d(2)},
		{Round: 1, Author: 1, Digest: d(9)},
		{Round: 1, Author: 3, Digest: d(0)},
		{Round: 2, Author: 0, Digest: d(1)},
	}, refs)

	require.True(t, refs[0].Less(refs[1]))
	require.Equal(t, dgconsensus.Slot{Round: 1, Author: 3}, refs[2].Slot())
}

func TestBlock_ValidateAncestors(t *testing.T) {
	t.Parallel()

	b := dgconsensus.Block{Round: 3, Author: 1}
	require.Error(t, b.ValidateAncestors(), "non-genesis without ancestors")

	b.Ancestors = []dgconsensus.BlockRef{{Round: 2, Author: 0}, {Round: 1, Author: 2}}
	require.NoError(t, b.ValidateAncestors())

	b.Ancestors = append(b.Ancestors, dgconsensus.BlockRef{Round: 3, Author: 3})
	require.Error(t, b.ValidateAncestors(), "same-round ancestor")

	b.Ancestors = []dgconsensus.BlockRef{{Round: 2, Author: 0}, {Round: 1, Author: 0}}
	require.Error(t, b.ValidateAncestors(), "two ancestors from one author")

	g := dgconsensus.Block{Round: 0, Ancestors: []dgconsensus.BlockRef{{}}}
	require.Error(t, g.ValidateAncestors())
}

func TestCommitRange(t *testing.T) {
	t.Parallel()

	r := dgconsensus.CommitRange{Start: 1, End: 50}
	require.True(t, r.Contains(1))
	require.True(t, r.Contains(50))
	require.False(t, r.Contains(51))
	require.Equal(t, 50, r.Len())

	next := dgconsensus.CommitRange{Start: 51, End: 100}
	require.True(t, r.IsNextRange(next))
	require.False(t, next.IsNextRange(r))

	m, ok := next.Merge(r)
	require.True(t, ok)
	require.Equal(t, dgconsensus.CommitRange{Start: 1, End: 100}, m)

	_, ok = r.Merge(dgconsensus.CommitRange{Start: 52, End: 60})
	require.False(t, ok)

	require.Zero(t, dgconsensus.CommitRange{Start: 5, End: 4}.Len())
}
