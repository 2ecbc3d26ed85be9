package dgconsensus_test

import (
	"math"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/stretchr/testify/require"
)

func TestByzantineMajority(t *testing.T) {
	for _, tc := range []struct {
		n    uint64
		want uint64
	}{
		{n: 12, want: 9},
		{n: 10, want: 7},
		{n: 100, want: 67},

		// Consecutive values cover each modulo-3 case.
		{n: 3, want: 3},
		{n: 4, want: 3},
		{n: 5, want: 4},
		{n: 7, want: 5},

		{n: math.MaxUint64, want: ((math.MaxUint64 / 3) * 2) + 1},
	} {
		require.Equal(t, tc.want, dgconsensus.ByzantineMajority(tc.n))
	}

	require.Panics(t, func() {
		_ = dgconsensus.ByzantineMajority(0)
	})
}

func TestByzantineMinority(t *testing.T) {
	for _, tc := range []struct {
		n    uint64
		want uint64
	}{
		{n: 12, want: 4},
		{n: 10, want: 4},
		{n: 100, want: 34},

		{n: 3, want: 1},
		{n: 4, want: 2},
		{n: 5, want: 2},
		{n: 7, want: 3},

		{n: math.MaxUint64, want: (math.MaxUint64 / 3)},
	} {
		require.Equal(t, tc.want, dgconsensus.ByzantineMinority(tc.n))
	}

	require.Panics(t, func() {
		_ = dgconsensus.ByzantineMinority(0)
	})
}
