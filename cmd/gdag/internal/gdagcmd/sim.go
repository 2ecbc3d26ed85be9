package gdagcmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"golang.org/x/sync/errgroup"
)

// Connectivity controls how densely simulated blocks reference the previous round.
type Connectivity string

const (
	// FullConnectivity links every block to every block of the previous round.
	FullConnectivity Connectivity = "full"

	// QuorumConnectivity links every block to a random quorum of the previous round,
	// always including the previous round's leaders.
	QuorumConnectivity Connectivity = "quorum"
)

// SimConfig describes a generated DAG.
type SimConfig struct {
	Rounds uint32

	// Every DropLeaderEvery-th round omits its round robin leader block.
	// Zero disables dropping.
	DropLeaderEvery uint32

	// SkipAuthority never produces a block. Negative disables skipping.
	SkipAuthority int

	Connectivity Connectivity
	Seed         uint64
}

func (c SimConfig) validate(committeeSize int) error {
	if c.Rounds == 0 {
		return fmt.Errorf("simulation needs at least one round")
	}
	if c.SkipAuthority >= committeeSize {
		return fmt.Errorf(
			"skipped authority %d is outside committee of size %d", c.SkipAuthority, committeeSize,
		)
	}
	switch c.Connectivity {
	case FullConnectivity, QuorumConnectivity:
	default:
		return fmt.Errorf("unknown connectivity %q (want %q or %q)", c.Connectivity, FullConnectivity, QuorumConnectivity)
	}
	return nil
}

// GenerateDAG builds a signed DAG for fx's committee.
// The result is indexed by author, each author's blocks in round order.
func GenerateDAG(fx *dgconsensustest.Fixture, cfg SimConfig) ([][]dgconsensus.Block, error) {
	if err := cfg.validate(fx.Committee.Size()); err != nil {
		return nil, err
	}

	d := dgconsensustest.NewDagBuilder(fx)
	d.Payload = func(round uint32, author dgconsensus.AuthorityIndex) []byte {
		return fmt.Appendf(nil, "round %d from %d", round, author)
	}

	for r := uint32(1); r <= cfg.Rounds; r++ {
		l := d.Layer(r)
		if cfg.SkipAuthority >= 0 {
			l = l.Authorities(dgconsensus.AuthorityIndex(cfg.SkipAuthority)).SkipBlock()
		}
		if cfg.DropLeaderEvery > 0 && r%cfg.DropLeaderEvery == 0 {
			l = l.NoLeaderBlock()
		}

		if cfg.Connectivity == QuorumConnectivity {
			l.MinAncestorLinks(true, cfg.Seed)
		} else {
			l.Build()
		}
	}

	out := make([][]dgconsensus.Block, fx.Committee.Size())
	for _, b := range d.AllBlocks() {
		out[b.Author] = append(out[b.Author], b)
	}
	return out, nil
}

// BlockAcceptor is the subset of [*dgengine.Engine] that [Feed] uses.
type BlockAcceptor interface {
	AcceptBlocks(ctx context.Context, blocks []dgconsensus.Block) error
}

// Feed delivers each author's blocks to a, one goroutine per author,
// waiting pace between an author's consecutive blocks.
// Authors race each other, so blocks routinely arrive before their ancestors.
func Feed(
	ctx context.Context,
	log *slog.Logger,
	a BlockAcceptor,
	byAuthor [][]dgconsensus.Block,
	pace time.Duration,
) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for i, blocks := range byAuthor {
		eg.Go(func() error {
			for _, b := range blocks {
				if err := a.AcceptBlocks(egCtx, []dgconsensus.Block{b}); err != nil {
					return fmt.Errorf("authority %d: failed to deliver block %s: %w", i, b.Ref(), err)
				}

				if pace > 0 {
					select {
					case <-egCtx.Done():
						return context.Cause(egCtx)
					case <-time.After(pace):
					}
				}
			}
			log.Debug("Authority finished", "author", i, "n_blocks", len(blocks))
			return nil
		})
	}
	return eg.Wait()
}
