// Package dgrecovery rebuilds in-memory consensus state from storage at startup.
//
// Replay is read-only with respect to storage,
// so replaying the same stores twice yields equivalent state.
package dgrecovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"github.com/gordian-engine/gdag/dg/dgstate"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/gassert"
)

// Config is the input to [Replay].
// The consensus parameters must match those the stored commits were produced with.
type Config struct {
	Committee  dgconsensus.Committee
	HashScheme dgconsensus.HashScheme

	GCDepth uint32

	ScoringStrategy dgscore.Strategy
	ScoringWindow   int

	BlockStore  dgstore.BlockStore
	CommitStore dgstore.CommitStore

	AssertEnv gassert.Env
}

// State is the recovered state an engine resumes from.
type State struct {
	DAG *dgstate.DagState

	// LastCommit is the zero Commit when nothing has been committed.
	LastCommit dgconsensus.Commit

	// LastDecided is the slot of the last committed leader.
	// Leaders skipped after it are decided again, with the same outcome.
	LastDecided dgconsensus.Slot

	// Published holds the last two published reputation scores, oldest first,
	// so that the leader schedule elects every undecided round
	// exactly as it did before the restart.
	// It is empty if no scoring window has closed.
	Published []PublishedScores

	// Scorer holds the commits of the current, unfinished window.
	Scorer *dgscore.Scorer

	BlocksReplayed  int
	CommitsReplayed int
}

// PublishedScores are reputation scores
// and the first round whose leaders they elect.
type PublishedScores struct {
	Scores    dgconsensus.ReputationScores
	FromRound uint32
}

// Scores returns the most recently published scores,
// or empty scores if none were published.
func (s State) Scores() dgconsensus.ReputationScores {
	if len(s.Published) == 0 {
		return dgconsensus.ReputationScores{}
	}
	return s.Published[len(s.Published)-1].Scores
}

// Replay reconstructs [State] from cfg's stores.
//
// It returns a [*dgconsensus.ReplayInconsistencyError]
// if a stored commit references a block that is not stored,
// and a [*dgconsensus.InvariantViolationError] if the stored commit indices have a gap.
// Neither is recoverable; the caller must not start.
func Replay(ctx context.Context, log *slog.Logger, cfg Config) (State, error) {
	dag, err := dgstate.New(log.With("sys", "dagstate"), dgstate.Config{
		Committee:  cfg.Committee,
		HashScheme: cfg.HashScheme,
		GCDepth:    cfg.GCDepth,
		AssertEnv:  cfg.AssertEnv,
	})
	if err != nil {
		return State{}, fmt.Errorf("failed to create DAG state: %w", err)
	}

	st := State{DAG: dag}

	commits, err := cfg.CommitStore.LoadCommitsFrom(ctx, 1)
	if err != nil {
		return State{}, &dgconsensus.StorageError{Op: "load commits", Err: err}
	}
	if len(commits) > 0 {
		last := commits[len(commits)-1]

		// Set the last committed leader round first,
		// so that blocks at or beneath the GC round are neither loaded nor required.
		dag.RecordCommit(dgconsensus.Commit{Leader: last.Leader})
	}

	gcRound := dag.GCRound()

	blocks, err := cfg.BlockStore.LoadBlocksInRoundRange(ctx, gcRound+1, math.MaxUint32)
	if err != nil {
		return State{}, &dgconsensus.StorageError{Op: "load blocks", Err: err}
	}
	accepted, err := dag.AcceptBlocks(blocks)
	if err != nil {
		return State{}, fmt.Errorf("stored blocks do not form a DAG: %w", err)
	}
	st.BlocksReplayed = len(accepted)

	for i, c := range commits {
		if c.Index != uint32(i+1) {
			return State{}, &dgconsensus.InvariantViolationError{
				Reason: fmt.Sprintf("stored commit %d found at position %d", c.Index, i+1),
			}
		}
		for _, ref := range c.Blocks {
			if ref.Round > gcRound && !dag.Contains(ref) {
				return State{}, &dgconsensus.ReplayInconsistencyError{
					CommitIndex: c.Index,
					Missing:     ref,
				}
			}
		}
		dag.RecordCommit(c)
	}
	st.CommitsReplayed = len(commits)

	if len(commits) > 0 {
		st.LastCommit = commits[len(commits)-1]
		st.LastDecided = st.LastCommit.Leader.Slot()
	}

	st.Scorer, st.Published, err = rebuildScorer(ctx, cfg, dag, commits)
	if err != nil {
		return State{}, err
	}

	log.Info(
		"Replayed stored state",
		"blocks", st.BlocksReplayed,
		"commits", st.CommitsReplayed,
		"gc_round", gcRound,
		"last_decided", st.LastDecided,
		"scores", st.Scores(),
	)

	return st, nil
}

// rebuildScorer replays enough commits through a new Scorer
// to recover the last two published scores and the pending window.
// Starting one full window before the windows it recovers
// restores the leader carried across each window boundary.
func rebuildScorer(
	ctx context.Context,
	cfg Config,
	dag *dgstate.DagState,
	commits []dgconsensus.Commit,
) (*dgscore.Scorer, []PublishedScores, error) {
	w := cfg.ScoringWindow
	if w <= 0 {
		w = dgscore.DefaultWindow
	}
	reader := storeReader{ctx: ctx, dag: dag, store: cfg.BlockStore}
	s := dgscore.NewScorer(cfg.Committee, reader, cfg.ScoringStrategy, w)

	closed := len(commits) / w
	start := 0
	if first := firstNeededWindow(commits, w, closed); first > 2 {
		start = (first - 2) * w
	}

	var published []PublishedScores
	for _, c := range commits[start:] {
		out, ok, err := s.Add(c)
		if err != nil {
			return nil, nil, fmt.Errorf(
				"failed to rescore commit %d: %w", c.Index, err,
			)
		}
		if !ok {
			continue
		}
		p := PublishedScores{Scores: out, FromRound: c.Leader.Round + 1}
		if n := len(published); n > 0 && published[n-1].FromRound == p.FromRound {
			// Same as the schedule: a later publication from the same round replaces the earlier.
			published[n-1] = p
			continue
		}
		published = append(published, p)
	}

	if len(published) > 2 {
		published = published[len(published)-2:]
	}
	return s, published, nil
}

// firstNeededWindow returns the 1-based number of the earliest closed window
// whose scores are still in force.
// That is the last window closing before the most recent publication round,
// since windows closing at the same leader round replace each other.
// It returns 0 when fewer than two distinct publication rounds exist.
func firstNeededWindow(commits []dgconsensus.Commit, w, closed int) int {
	if closed == 0 {
		return 0
	}
	latest := commits[closed*w-1].Leader.Round
	for k := closed - 1; k >= 1; k-- {
		if commits[k*w-1].Leader.Round != latest {
			return k
		}
	}
	return 0
}

// storeReader resolves blocks from DAG state,
// falling back to the block store for garbage collected blocks.
type storeReader struct {
	ctx   context.Context
	dag   *dgstate.DagState
	store dgstore.BlockStore
}

func (r storeReader) GetBlock(ref dgconsensus.BlockRef) (dgconsensus.Block, bool) {
	if b, ok := r.dag.GetBlock(ref); ok {
		return b, true
	}
	b, err := r.store.LoadBlock(r.ctx, ref)
	if err != nil {
		return dgconsensus.Block{}, false
	}
	return b, true
}
