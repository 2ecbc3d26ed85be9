package dgengine

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgleader"
	"github.com/gordian-engine/gdag/dg/dgrecovery"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/gassert"
	"github.com/gordian-engine/gdag/gwatchdog"
	"github.com/prometheus/client_golang/prometheus"
)

// Opt is an option for the Engine.
// Options that affect recovery write into the [dgrecovery.Config],
// so that the replayed state and the live engine agree.
type Opt func(*Engine, *dgrecovery.Config) error

// WithCommittee sets the fixed committee for the engine's lifetime.
// This option is required.
func WithCommittee(c dgconsensus.Committee) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		if c.Size() == 0 {
			return errors.New("WithCommittee: committee must not be empty")
		}
		rc.Committee = c
		return nil
	}
}

// WithHashScheme sets the engine's hash scheme.
// This option is required.
func WithHashScheme(h dgconsensus.HashScheme) Opt {
	return func(e *Engine, rc *dgrecovery.Config) error {
		rc.HashScheme = h
		return nil
	}
}

// WithBlockStore sets the engine's block store.
// This option is required.
func WithBlockStore(s dgstore.BlockStore) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		rc.BlockStore = s
		return nil
	}
}

// WithCommitStore sets the engine's commit store.
// This option is required.
func WithCommitStore(s dgstore.CommitStore) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		rc.CommitStore = s
		return nil
	}
}

// WithStore is shorthand for [WithBlockStore] and [WithCommitStore]
// on a single combined store.
func WithStore(s dgstore.Store) Opt {
	return func(e *Engine, rc *dgrecovery.Config) error {
		rc.BlockStore = s
		rc.CommitStore = s
		return nil
	}
}

// WithWaveLength sets the number of rounds in a wave.
// It defaults to [dgcommit.DefaultWaveLength] and may not be less than [dgcommit.MinWaveLength].
func WithWaveLength(w uint32) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		if w < dgcommit.MinWaveLength {
			return fmt.Errorf("WithWaveLength: wave length must be at least %d; got %d", dgcommit.MinWaveLength, w)
		}
		e.waveLength = w
		return nil
	}
}

// WithNumLeadersPerRound sets how many leader slots each round has.
// It defaults to 1.
func WithNumLeadersPerRound(n uint32) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		if n == 0 {
			return errors.New("WithNumLeadersPerRound: must have at least one leader per round")
		}
		e.numLeaders = n
		return nil
	}
}

// WithGCDepth sets how many rounds below the last committed leader are retained.
// The default of zero retains every block.
func WithGCDepth(d uint32) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		rc.GCDepth = d
		return nil
	}
}

// WithScoringWindow sets the number of commits per reputation scoring window.
// It defaults to [dgscore.DefaultWindow].
func WithScoringWindow(n int) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		if n <= 0 {
			return fmt.Errorf("WithScoringWindow: window must be positive; got %d", n)
		}
		rc.ScoringWindow = n
		return nil
	}
}

// WithScoringStrategy sets how reputation scores are computed.
// It defaults to [dgscore.SubDagBlocks].
func WithScoringStrategy(s dgscore.Strategy) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		rc.ScoringStrategy = s
		return nil
	}
}

// WithBadNodeStakeThreshold sets the percentage of total stake
// whose lowest scoring authorities are swapped out of the leader schedule.
// Zero, the default, disables swapping.
func WithBadNodeStakeThreshold(percent uint32) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		if percent > dgleader.MaxBadNodeStakePercent {
			return fmt.Errorf(
				"WithBadNodeStakeThreshold: threshold must be at most %d; got %d",
				dgleader.MaxBadNodeStakePercent, percent,
			)
		}
		e.badNodeStakePercent = percent
		return nil
	}
}

// WithCommitOutput sets the channel the engine delivers committed sub-dags on,
// in commit index order.
// If unset, commits are persisted but not delivered.
func WithCommitOutput(ch chan<- dgconsensus.CommittedSubDag) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		e.commitOut = ch
		return nil
	}
}

// WithBlockVerifier sets the verifier applied to every block passed to [*Engine.AcceptBlocks].
// It defaults to a [dgconsensus.SignatureVerifier] over the engine's committee and hash scheme.
func WithBlockVerifier(v dgconsensus.BlockVerifier) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		e.verifier = v
		return nil
	}
}

// WithWatchdog sets the engine's watchdog.
// This option is required.
// For tests, the caller may use [gwatchdog.NewNopWatchdog] to avoid creating unnecessary goroutines.
func WithWatchdog(wd *gwatchdog.Watchdog) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		e.watchdog = wd
		return nil
	}
}

// WithMetricsChannel sets the channel where the engine emits [Metrics]
// after each batch of work.
func WithMetricsChannel(ch chan<- Metrics) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		if len(ch) != 0 {
			return errors.New("WithMetricsChannel: ch must be unbuffered")
		}
		e.metricsCh = ch
		return nil
	}
}

// WithPrometheusRegisterer registers the engine's prometheus instruments with reg.
func WithPrometheusRegisterer(reg prometheus.Registerer) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		e.promReg = reg
		return nil
	}
}

// WithPersistBackoff sets the retry policy for storage writes.
// newBackOff is called once per write.
// The default retries indefinitely with exponential backoff,
// until the engine's context is canceled.
func WithPersistBackoff(newBackOff func() backoff.BackOff) Opt {
	return func(e *Engine, _ *dgrecovery.Config) error {
		if newBackOff == nil {
			return errors.New("WithPersistBackoff: newBackOff must not be nil")
		}
		e.newBackOff = newBackOff
		return nil
	}
}

// WithAssertEnv sets the assertion environment used by DAG state in debug builds.
func WithAssertEnv(env gassert.Env) Opt {
	return func(_ *Engine, rc *dgrecovery.Config) error {
		rc.AssertEnv = env
		return nil
	}
}
