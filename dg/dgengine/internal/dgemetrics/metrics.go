package dgemetrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Metrics is a point-in-time summary of the engine kernel.
// This type is declared here, but aliased in [dgengine].
type Metrics struct {
	LastCommitIndex uint32

	LastDecidedRound  uint32
	LastDecidedAuthor uint16

	HighestAcceptedRound uint32
	GCRound              uint32

	DAGBlocks       int
	SuspendedBlocks int
}

func (m Metrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("last_commit_index", uint64(m.LastCommitIndex)),
		slog.String("last_decided", fmt.Sprintf("%d/%d", m.LastDecidedRound, m.LastDecidedAuthor)),
		slog.Uint64("highest_accepted_round", uint64(m.HighestAcceptedRound)),
		slog.Uint64("gc_round", uint64(m.GCRound)),
		slog.Int("dag_blocks", m.DAGBlocks),
		slog.Int("suspended_blocks", m.SuspendedBlocks),
	)
}

// Collector forwards the most recent [Metrics] to an output channel
// without ever blocking the kernel that produces them.
// Intermediate values may be skipped if the reader is slow,
// but the latest value is always delivered.
type Collector struct {
	mu     sync.Mutex
	latest Metrics

	// Capacity one; a pending notification covers any number of updates.
	notify chan struct{}

	outCh chan<- Metrics

	done chan struct{}
}

func NewCollector(ctx context.Context, outCh chan<- Metrics) *Collector {
	c := &Collector{
		notify: make(chan struct{}, 1),

		outCh: outCh,

		done: make(chan struct{}),
	}
	go c.background(ctx)
	return c
}

// Update replaces the latest metrics with m.
func (c *Collector) Update(m Metrics) {
	c.mu.Lock()
	c.latest = m
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) background(ctx context.Context) {
	defer close(c.done)

	var cur Metrics

	var outdated bool
	for {
		// Nothing to send until the first update arrives.
		var outCh chan<- Metrics
		if outdated {
			outCh = c.outCh
		}

		select {
		case <-ctx.Done():
			return

		case <-c.notify:
			c.mu.Lock()
			cur = c.latest
			c.mu.Unlock()
			outdated = true

		case outCh <- cur:
			// Okay.
			outdated = false
		}
	}
}
