package gdagcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gordian-engine/gdag/dg/dgengine"
	"github.com/gordian-engine/gdag/dg/dgrecovery"
)

// RunSimulate generates a DAG, feeds it through an engine,
// and writes every resulting commit to w.
// It returns the engine status after the last block was accepted.
func RunSimulate(
	ctx context.Context,
	log *slog.Logger,
	w io.Writer,
	cfg Config,
	sim SimConfig,
	pace time.Duration,
	extra ...dgengine.Opt,
) (st dgengine.Status, err error) {
	n, err := StartNode(ctx, log, cfg, extra...)
	if err != nil {
		return dgengine.Status{}, err
	}
	defer func() {
		err = errors.Join(err, n.Stop())
	}()

	byAuthor, err := GenerateDAG(n.Fx, sim)
	if err != nil {
		return dgengine.Status{}, err
	}

	// Nonzero when resuming from an existing database.
	before, err := n.Engine.Status(ctx)
	if err != nil {
		return dgengine.Status{}, err
	}

	start := time.Now()
	if err := Feed(ctx, log, n.Engine, byAuthor, pace); err != nil {
		return dgengine.Status{}, err
	}

	// Every accepted block has been processed by the time status is served.
	st, err = n.Engine.Status(ctx)
	if err != nil {
		return dgengine.Status{}, err
	}

	if st.LastCommitIndex > before.LastCommitIndex {
		if err := PrintCommits(ctx, w, n.Commits, st.LastCommitIndex); err != nil {
			return st, fmt.Errorf("failed to print commits: %w", err)
		}
	}

	log.Info(
		"Simulation complete",
		"rounds", sim.Rounds,
		"new_commits", st.LastCommitIndex-before.LastCommitIndex,
		"last_decided", st.LastDecided,
		"suspended_blocks", st.SuspendedBlocks,
		"elapsed", time.Since(start),
	)
	return st, nil
}

// RunReplay recovers state from the sqlite database named in cfg
// and writes a summary of it to w.
func RunReplay(ctx context.Context, log *slog.Logger, w io.Writer, cfg Config) (dgrecovery.State, error) {
	if cfg.DBPath == "" {
		return dgrecovery.State{}, errors.New("replay requires a database path")
	}

	fx, err := NewCommitteeFixture(cfg.Passphrase, cfg.Authorities)
	if err != nil {
		return dgrecovery.State{}, err
	}

	store, closeStore, err := OpenStore(ctx, cfg.DBPath)
	if err != nil {
		return dgrecovery.State{}, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("Failed to close store", "err", err)
		}
	}()

	st, err := dgrecovery.Replay(ctx, log.With("sys", "recovery"), dgrecovery.Config{
		Committee:  fx.Committee,
		HashScheme: fx.HashScheme,

		GCDepth: cfg.GCDepth,

		ScoringStrategy: cfg.ScoringStrategy,
		ScoringWindow:   cfg.ScoringWindow,

		BlockStore:  store,
		CommitStore: store,
	})
	if err != nil {
		return dgrecovery.State{}, err
	}

	fmt.Fprintf(w, "commits replayed:       %d\n", st.CommitsReplayed)
	fmt.Fprintf(w, "blocks replayed:        %d\n", st.BlocksReplayed)
	fmt.Fprintf(w, "last commit:            %d\n", st.LastCommit.Index)
	fmt.Fprintf(w, "last decided:           %s\n", st.LastDecided)
	fmt.Fprintf(w, "highest accepted round: %d\n", st.DAG.HighestAcceptedRound())
	fmt.Fprintf(w, "gc round:               %d\n", st.DAG.GCRound())
	for _, p := range st.Published {
		fmt.Fprintf(
			w, "scores from round %d:   commits=%s scores=%v\n",
			p.FromRound, p.Scores.CommitRange, p.Scores.Scores,
		)
	}

	return st, nil
}
