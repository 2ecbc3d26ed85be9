package gdagcmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgengine"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config keys, shared by flags, GDAG_* environment variables and config files.
const (
	KeyPassphrase      = "passphrase"
	KeyAuthorities     = "authorities"
	KeyWaveLength      = "wave-length"
	KeyLeaders         = "leaders-per-round"
	KeyGCDepth         = "gc-depth"
	KeyScoringWindow   = "scoring-window"
	KeyScoringStrategy = "scoring-strategy"
	KeyBadNodeStake    = "bad-node-stake-percent"
	KeyDB              = "db"
)

// Config holds the consensus parameters common to every subcommand.
type Config struct {
	Passphrase  string
	Authorities int

	WaveLength      uint32
	LeadersPerRound uint32
	GCDepth         uint32

	ScoringWindow   int
	ScoringStrategy dgscore.Strategy
	BadNodeStake    uint32

	// Empty for an in-memory store.
	DBPath string
}

// AddConsensusFlags registers the flags read by [LoadConfig].
func AddConsensusFlags(fs *pflag.FlagSet) {
	fs.String(KeyPassphrase, "gdag", "insecure passphrase from which authority keys are derived")
	fs.Int(KeyAuthorities, 4, "number of equally staked authorities")
	fs.Uint32(KeyWaveLength, dgcommit.DefaultWaveLength, "rounds per wave")
	fs.Uint32(KeyLeaders, 1, "leaders elected per round")
	fs.Uint32(KeyGCDepth, 0, "rounds of history kept behind the last commit (0 keeps everything)")
	fs.Int(KeyScoringWindow, dgscore.DefaultWindow, "commits per reputation scoring window")
	fs.String(KeyScoringStrategy, dgscore.SubDagBlocks.String(), "what counts toward reputation (SubDagBlocks or LeaderVotes)")
	fs.Uint32(KeyBadNodeStake, 20, "stake percent of low scoring authorities swapped out of leadership")
	fs.String(KeyDB, "", "path to a sqlite database; in-memory storage if empty")
}

// LoadConfig reads a Config from v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Passphrase:  v.GetString(KeyPassphrase),
		Authorities: v.GetInt(KeyAuthorities),

		WaveLength:      v.GetUint32(KeyWaveLength),
		LeadersPerRound: v.GetUint32(KeyLeaders),
		GCDepth:         v.GetUint32(KeyGCDepth),

		ScoringWindow: v.GetInt(KeyScoringWindow),
		BadNodeStake:  v.GetUint32(KeyBadNodeStake),

		DBPath: v.GetString(KeyDB),
	}

	var err error
	if cfg.Authorities < 1 {
		err = errors.Join(err, fmt.Errorf("%s must be positive (got %d)", KeyAuthorities, cfg.Authorities))
	}

	st, sErr := dgscore.ParseStrategy(v.GetString(KeyScoringStrategy))
	if sErr != nil {
		err = errors.Join(err, fmt.Errorf("invalid %s: %w", KeyScoringStrategy, sErr))
	}
	cfg.ScoringStrategy = st

	return cfg, err
}

// EngineOpts returns the engine options for the consensus parameters of cfg.
// Storage, committee and watchdog options are left to the caller.
func (c Config) EngineOpts() []dgengine.Opt {
	return []dgengine.Opt{
		dgengine.WithWaveLength(c.WaveLength),
		dgengine.WithNumLeadersPerRound(c.LeadersPerRound),
		dgengine.WithGCDepth(c.GCDepth),
		dgengine.WithScoringWindow(c.ScoringWindow),
		dgengine.WithScoringStrategy(c.ScoringStrategy),
		dgengine.WithBadNodeStakeThreshold(c.BadNodeStake),
	}
}

// Simulation config keys.
const (
	KeyRounds          = "rounds"
	KeyDropLeaderEvery = "drop-leader-every"
	KeySkipAuthority   = "skip-authority"
	KeyConnectivity    = "connectivity"
	KeySeed            = "seed"
	KeyPace            = "pace"
)

// AddSimFlags registers the flags read by [LoadSimConfig].
func AddSimFlags(fs *pflag.FlagSet, defaultPace time.Duration) {
	fs.Uint32(KeyRounds, 40, "number of rounds to generate")
	fs.Uint32(KeyDropLeaderEvery, 0, "omit the round robin leader block every N rounds (0 disables)")
	fs.Int(KeySkipAuthority, -1, "authority that never produces a block (negative disables)")
	fs.String(KeyConnectivity, string(FullConnectivity), "ancestor links per block (full or quorum)")
	fs.Uint64(KeySeed, 1, "random seed for quorum connectivity")
	fs.Duration(KeyPace, defaultPace, "delay between each authority's blocks")
}

// LoadSimConfig reads a SimConfig and the feed pace from v.
func LoadSimConfig(v *viper.Viper) (SimConfig, time.Duration) {
	return SimConfig{
		Rounds:          v.GetUint32(KeyRounds),
		DropLeaderEvery: v.GetUint32(KeyDropLeaderEvery),
		SkipAuthority:   v.GetInt(KeySkipAuthority),
		Connectivity:    Connectivity(v.GetString(KeyConnectivity)),
		Seed:            v.GetUint64(KeySeed),
	}, v.GetDuration(KeyPace)
}
