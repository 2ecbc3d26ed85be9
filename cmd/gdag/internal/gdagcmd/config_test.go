package gdagcmd_test

import (
	"strings"
	"testing"
	"time"

	"github.com/gordian-engine/gdag/cmd/gdag/internal/gdagcmd"
	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	gdagcmd.AddConsensusFlags(fs)
	gdagcmd.AddSimFlags(fs, time.Second)
	require.NoError(t, fs.Parse(args))

	v := viper.New()
	v.SetEnvPrefix("GDAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.BindPFlags(fs))
	return v
}

func TestLoadConfig_defaults(t *testing.T) {
	t.Parallel()

	cfg, err := gdagcmd.LoadConfig(newViper(t))
	require.NoError(t, err)

	require.Equal(t, 4, cfg.Authorities)
	require.Equal(t, uint32(dgcommit.DefaultWaveLength), cfg.WaveLength)
	require.Equal(t, uint32(1), cfg.LeadersPerRound)
	require.Equal(t, dgscore.DefaultWindow, cfg.ScoringWindow)
	require.Equal(t, dgscore.SubDagBlocks, cfg.ScoringStrategy)
	require.Empty(t, cfg.DBPath)

	sim, pace := gdagcmd.LoadSimConfig(newViper(t))
	require.Equal(t, gdagcmd.FullConnectivity, sim.Connectivity)
	require.Equal(t, -1, sim.SkipAuthority)
	require.Equal(t, time.Second, pace)
}

func TestLoadConfig_flagsAndEnvironment(t *testing.T) {
	// Not parallel: sets environment variables.
	t.Setenv("GDAG_WAVE_LENGTH", "5")
	t.Setenv("GDAG_SCORING_STRATEGY", "LeaderVotes")
	t.Setenv("GDAG_AUTHORITIES", "10")

	v := newViper(t, "--authorities=7", "--db=/tmp/x.sqlite", "--skip-authority=2")

	cfg, err := gdagcmd.LoadConfig(v)
	require.NoError(t, err)

	// Flags set on the command line win over the environment.
	require.Equal(t, 7, cfg.Authorities)
	require.Equal(t, uint32(5), cfg.WaveLength)
	require.Equal(t, dgscore.LeaderVotes, cfg.ScoringStrategy)
	require.Equal(t, "/tmp/x.sqlite", cfg.DBPath)

	sim, _ := gdagcmd.LoadSimConfig(v)
	require.Equal(t, 2, sim.SkipAuthority)
}

func TestLoadConfig_invalid(t *testing.T) {
	t.Parallel()

	_, err := gdagcmd.LoadConfig(newViper(t, "--authorities=0", "--scoring-strategy=Nope"))
	require.ErrorContains(t, err, "authorities must be positive")
	require.ErrorContains(t, err, "unknown scoring strategy")
}
