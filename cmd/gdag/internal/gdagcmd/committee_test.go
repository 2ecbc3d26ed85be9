package gdagcmd_test

import (
	"testing"

	"github.com/gordian-engine/gdag/cmd/gdag/internal/gdagcmd"
	"github.com/stretchr/testify/require"
)

func TestNewCommitteeFixture_deterministic(t *testing.T) {
	t.Parallel()

	a, err := gdagcmd.NewCommitteeFixture("pass", 4)
	require.NoError(t, err)
	b, err := gdagcmd.NewCommitteeFixture("pass", 4)
	require.NoError(t, err)
	c, err := gdagcmd.NewCommitteeFixture("other", 4)
	require.NoError(t, err)

	require.Equal(t, 4, a.Committee.Size())
	seen := map[string]bool{}
	for i, auth := range a.Committee.Authorities() {
		k := string(auth.PubKey.PubKeyBytes())
		require.False(t, seen[k], "authority %d shares a key", i)
		seen[k] = true

		require.True(t, auth.PubKey.Equal(b.Committee.Authorities()[i].PubKey))
		require.False(t, auth.PubKey.Equal(c.Committee.Authorities()[i].PubKey))
	}

	_, err = gdagcmd.NewCommitteeFixture("pass", 0)
	require.Error(t, err)
}
