package gdagcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gordian-engine/gdag/dg/dgcodec/dgjson"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/dg/dgengine"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/dg/dgstore/dgmemstore"
	"github.com/gordian-engine/gdag/dgsqlite"
	"github.com/gordian-engine/gdag/gwatchdog"
)

// OpenStore opens the sqlite database at path,
// or returns an in-memory store if path is empty.
// The returned close function must be called once the store is no longer used.
func OpenStore(ctx context.Context, path string) (dgstore.Store, func() error, error) {
	if path == "" {
		return dgmemstore.NewStore(), func() error { return nil }, nil
	}

	s, err := dgsqlite.NewOnDiskStore(ctx, path, dgjson.MarshalCodec{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store at %q: %w", path, err)
	}
	return s, s.Close, nil
}

// Node is a running engine along with the resources it owns.
type Node struct {
	Fx     *dgconsensustest.Fixture
	Engine *dgengine.Engine

	// Commits delivers every committed sub-dag in order.
	// It must be drained for the engine to make progress beyond its outbox.
	Commits <-chan dgconsensus.CommittedSubDag

	cancel     context.CancelCauseFunc
	wd         *gwatchdog.Watchdog
	closeStore func() error
}

var errNodeStopped = errors.New("node stopped")

// StartNode opens storage and starts an engine for cfg.
// Call [*Node.Stop] to release everything it started.
func StartNode(ctx context.Context, log *slog.Logger, cfg Config, extra ...dgengine.Opt) (*Node, error) {
	fx, err := NewCommitteeFixture(cfg.Passphrase, cfg.Authorities)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := OpenStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	wd, wCtx := gwatchdog.NewWatchdog(ctx, log.With("sys", "watchdog"))

	commits := make(chan dgconsensus.CommittedSubDag)
	opts := append([]dgengine.Opt{
		dgengine.WithCommittee(fx.Committee),
		dgengine.WithHashScheme(fx.HashScheme),
		dgengine.WithStore(store),
		dgengine.WithWatchdog(wd),
		dgengine.WithCommitOutput(commits),
	}, cfg.EngineOpts()...)
	opts = append(opts, extra...)

	e, err := dgengine.New(wCtx, log.With("sys", "engine"), opts...)
	if err != nil {
		cancel(err)
		wd.Wait()
		return nil, errors.Join(err, closeStore())
	}

	return &Node{
		Fx:      fx,
		Engine:  e,
		Commits: commits,

		cancel:     cancel,
		wd:         wd,
		closeStore: closeStore,
	}, nil
}

// Stop stops the engine and closes the store.
// It returns the engine's terminal error, if any, joined with any close error.
func (n *Node) Stop() error {
	n.cancel(errNodeStopped)
	n.Engine.Wait()
	n.wd.Wait()
	return errors.Join(n.Engine.Err(), n.closeStore())
}

// PrintCommits writes one line per commit received from commits,
// returning once the commit at index through has been written.
func PrintCommits(
	ctx context.Context,
	w io.Writer,
	commits <-chan dgconsensus.CommittedSubDag,
	through uint32,
) error {
	if through == 0 {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case c := <-commits:
			if _, err := fmt.Fprintf(
				w, "commit %d: leader=%s rounds=%s blocks=%d\n",
				c.Commit.Index, c.Commit.Leader, c.Commit.Rounds, len(c.Blocks),
			); err != nil {
				return err
			}
			if c.Commit.Index >= through {
				return nil
			}
		}
	}
}
