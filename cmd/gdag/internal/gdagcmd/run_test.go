package gdagcmd_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gordian-engine/gdag/cmd/gdag/internal/gdagcmd"
	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

func testConfig() gdagcmd.Config {
	return gdagcmd.Config{
		Passphrase:  "gdag",
		Authorities: 4,

		WaveLength:      dgcommit.DefaultWaveLength,
		LeadersPerRound: 1,

		ScoringWindow:   dgscore.DefaultWindow,
		ScoringStrategy: dgscore.SubDagBlocks,
	}
}

func fullSim(rounds uint32) gdagcmd.SimConfig {
	return gdagcmd.SimConfig{
		Rounds:        rounds,
		SkipAuthority: -1,
		Connectivity:  gdagcmd.FullConnectivity,
	}
}

func TestRunSimulate_inMemory(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	st, err := gdagcmd.RunSimulate(context.Background(), slogt.New(t), &out, testConfig(), fullSim(10), 0)
	require.NoError(t, err)

	require.Equal(t, uint32(8), st.LastCommitIndex)
	require.Equal(t, dgconsensus.Slot{Round: 8, Author: 0}, st.LastDecided)
	require.Zero(t, st.SuspendedBlocks)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	require.True(t, strings.HasPrefix(lines[0], "commit 1: "))
	require.True(t, strings.HasPrefix(lines[7], "commit 8: "))
}

func TestRunSimulate_skippedAuthorityStillCommits(t *testing.T) {
	t.Parallel()

	sim := fullSim(12)
	sim.SkipAuthority = 2

	var out bytes.Buffer
	st, err := gdagcmd.RunSimulate(context.Background(), slogt.New(t), &out, testConfig(), sim, 0)
	require.NoError(t, err)

	// Three of four authorities still form a quorum,
	// but the skipped authority's leader rounds are never committed.
	require.NotZero(t, st.LastCommitIndex)
	require.NotRegexp(t, `leader=B\d+\(2,`, out.String())
}

func TestRunSimulate_resumeAndReplay(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "gdag.sqlite")

	ctx := context.Background()
	log := slogt.New(t)

	var out bytes.Buffer
	st, err := gdagcmd.RunSimulate(ctx, log, &out, cfg, fullSim(10), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(8), st.LastCommitIndex)

	// The first ten rounds generate identically, so the longer run extends the stored DAG.
	out.Reset()
	st, err = gdagcmd.RunSimulate(ctx, log, &out, cfg, fullSim(16), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(14), st.LastCommitIndex)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	require.True(t, strings.HasPrefix(lines[0], "commit 9: "))

	out.Reset()
	rst, err := gdagcmd.RunReplay(ctx, log, &out, cfg)
	require.NoError(t, err)
	require.Equal(t, 14, rst.CommitsReplayed)
	require.Equal(t, uint32(14), rst.LastCommit.Index)
	require.Equal(t, st.LastDecided, rst.LastDecided)
	require.Contains(t, out.String(), "commits replayed:       14")
}

func TestRunReplay_requiresDatabase(t *testing.T) {
	t.Parallel()

	_, err := gdagcmd.RunReplay(context.Background(), slogt.New(t), new(bytes.Buffer), testConfig())
	require.Error(t, err)
}
