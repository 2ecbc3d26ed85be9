package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd(slogt.New(t))
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestCommittee(t *testing.T) {
	t.Parallel()

	out := runCmd(t, "committee", "--authorities=3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[2], "2 sim-2 "))

	require.Equal(t, out, runCmd(t, "committee", "--authorities=3"))
	require.NotEqual(t, out, runCmd(t, "committee", "--authorities=3", "--passphrase=other"))
}

func TestSimulateThenReplay(t *testing.T) {
	t.Parallel()

	db := filepath.Join(t.TempDir(), "sim.sqlite")

	out := runCmd(t, "simulate", "--rounds=7", "--db="+db, "--connectivity=quorum")
	require.Contains(t, out, "commit 1: ")

	out = runCmd(t, "replay", "--db="+db)
	require.Contains(t, out, "commits replayed:")
	require.Contains(t, out, "highest accepted round: 7")
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gdag.toml")
	require.NoError(t, writeFile(cfgPath, "authorities = 5\n"))

	out := runCmd(t, "committee", "--config="+cfgPath)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 5)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
