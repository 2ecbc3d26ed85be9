package dgconsensus_test

import (
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/stretchr/testify/require"
)

func TestNewCommittee_validation(t *testing.T) {
	t.Parallel()

	_, err := dgconsensus.NewCommittee(nil)
	require.Error(t, err)

	_, err = dgconsensus.NewCommittee([]dgconsensus.Authority{{Index: 1, Stake: 1}})
	require.Error(t, err)

	_, err = dgconsensus.NewCommittee([]dgconsensus.Authority{{Index: 0, Stake: 0}})
	require.Error(t, err)
}

func TestCommittee_thresholds(t *testing.T) {
	t.Parallel()

	c, err := dgconsensus.NewCommittee([]dgconsensus.Authority{
		{Index: 0, Stake: 1},
		{Index: 1, Stake: 1},
		{Index: 2, Stake: 1},
		{Index: 3, Stake: 1},
	})
	require.NoError(t, err)

	require.Equal(t, 4, c.Size())
	require.Equal(t, uint64(4), c.TotalStake())
	require.Equal(t, uint64(3), c.QuorumThreshold())
	require.Equal(t, uint64(2), c.ValidityThreshold())
	require.False(t, c.IsValidIndex(4))
	require.Zero(t, c.Stake(9))
}

func TestStakeAggregator(t *testing.T) {
	t.Parallel()

	c, err := dgconsensus.NewCommittee([]dgconsensus.Authority{
		{Index: 0, Stake: 5},
		{Index: 1, Stake: 1},
		{Index: 2, Stake: 1},
		{Index: 3, Stake: 1},
	})
	require.NoError(t, err)
	// Total 8, quorum 6, validity 3.

	a := dgconsensus.NewStakeAggregator(c)
	require.True(t, a.Add(1))
	require.False(t, a.Add(1), "duplicate add ignored")
	require.False(t, a.Add(7), "unknown authority ignored")
	require.True(t, a.Add(2))
	require.Equal(t, uint64(2), a.Stake())
	require.False(t, a.ReachedValidity())

	require.True(t, a.Add(0))
	require.True(t, a.ReachedValidity())
	require.True(t, a.ReachedQuorum())
	require.Equal(t, []dgconsensus.AuthorityIndex{0, 1, 2}, a.Authorities())

	a.Clear()
	require.Zero(t, a.Stake())
	require.False(t, a.Contains(0))
}
