package dgengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/trace"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgengine/internal/dgemetrics"
	"github.com/gordian-engine/gdag/dg/dgleader"
	"github.com/gordian-engine/gdag/dg/dglinear"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"github.com/gordian-engine/gdag/dg/dgstate"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/gwatchdog"
	"github.com/gordian-engine/gdag/internal/glog"
)

// kernel owns all mutable consensus state.
// Every decision happens on its single goroutine.
type kernel struct {
	log *slog.Logger

	dag        *dgstate.DagState
	committer  *dgcommit.UniversalCommitter
	linearizer *dglinear.Linearizer
	schedule   *dgleader.Schedule
	scorer     *dgscore.Scorer

	blockStore  dgstore.BlockStore
	commitStore dgstore.CommitStore

	newBackOff func() backoff.BackOff

	mc   *dgemetrics.Collector
	prom *dgemetrics.Prometheus

	suspended *suspendedBlocks

	lastDecided dgconsensus.Slot
	lastCommit  dgconsensus.Commit

	// Committed sub-dags not yet received from commitOut.
	// Always empty when commitOut is nil.
	commitOut chan<- dgconsensus.CommittedSubDag
	outbox    []dgconsensus.CommittedSubDag

	acceptRequests chan acceptRequest
	statusRequests chan chan Status
	blockRequests  chan blockRequest

	// stopped is canceled when the main loop returns,
	// so that callers blocked on a request can give up.
	stopped     context.Context
	markStopped context.CancelFunc

	done chan struct{}

	// Set before done is closed.
	err error
}

type acceptRequest struct {
	Blocks []dgconsensus.Block
	Resp   chan error
}

// blockRequest resolves refs from DAG state.
// Refs no longer held are zero Blocks in the response.
type blockRequest struct {
	Refs []dgconsensus.BlockRef
	Resp chan []dgconsensus.Block
}

func (k *kernel) mainLoop(ctx context.Context, wd *gwatchdog.Watchdog) {
	ctx, task := trace.NewTask(ctx, "Engine.kernel.mainLoop")
	defer task.End()

	defer close(k.done)
	defer k.markStopped()

	wSig := wd.Monitor(gwatchdog.MonitorConfig{
		Name:     "Engine kernel",
		Interval: 10 * time.Second, Jitter: time.Second,
		ResponseTimeout: time.Second,
	})

	// The recovered DAG may hold leaders that were decidable
	// but not yet committed when the process stopped.
	if err := k.advance(ctx); err != nil {
		k.stop(ctx, err)
		return
	}
	k.updateMetrics()

	for {
		var outCh chan<- dgconsensus.CommittedSubDag
		var next dgconsensus.CommittedSubDag
		if len(k.outbox) > 0 {
			outCh = k.commitOut
			next = k.outbox[0]
		}

		select {
		case <-ctx.Done():
			k.log.Info(
				"Engine kernel stopping",
				"cause", context.Cause(ctx),
				"last_commit_index", k.lastCommit.Index,
				"last_decided", k.lastDecided,
				"undelivered", len(k.outbox),
			)
			return

		case sig := <-wSig:
			close(sig.Alive)

		case req := <-k.acceptRequests:
			if err := k.handleAccept(ctx, req); err != nil {
				k.stop(ctx, err)
				return
			}

		case resp := <-k.statusRequests:
			resp <- k.status()

		case req := <-k.blockRequests:
			k.handleBlockRequest(req)

		case outCh <- next:
			k.outbox[0] = dgconsensus.CommittedSubDag{}
			k.outbox = k.outbox[1:]
		}
	}
}

// stop records err as the terminal error,
// unless it is only a consequence of ctx being canceled.
func (k *kernel) stop(ctx context.Context, err error) {
	if ctx.Err() != nil {
		k.log.Info("Engine kernel stopping during work", "cause", context.Cause(ctx), "err", err)
		return
	}

	k.err = err
	k.log.Error(
		"ENGINE HALTED",
		"err", err,
		"last_commit_index", k.lastCommit.Index,
		"last_decided", k.lastDecided,
	)
}

func (k *kernel) handleAccept(ctx context.Context, req acceptRequest) error {
	defer trace.StartRegion(ctx, "handleAccept").End()

	accepted, acceptErr := k.acceptBlocks(req.Blocks)
	if len(accepted) > 0 {
		if err := k.persist(ctx, "save_blocks", func(ctx context.Context) error {
			return k.blockStore.SaveBlocks(ctx, accepted)
		}); err != nil {
			return err
		}
	}

	// Buffered.
	req.Resp <- acceptErr

	if len(accepted) == 0 {
		k.updateMetrics()
		return nil
	}

	if err := k.advance(ctx); err != nil {
		return err
	}
	k.updateMetrics()
	return nil
}

// acceptBlocks inserts blocks into DAG state in round order.
// Blocks with missing ancestors are suspended,
// and accepting a block releases the suspended blocks that were waiting only on it.
//
// The returned error only describes blocks DAG state rejected outright.
func (k *kernel) acceptBlocks(blocks []dgconsensus.Block) ([]dgconsensus.Block, error) {
	queue := make([]dgconsensus.Block, len(blocks))
	copy(queue, blocks)
	dgconsensus.SortBlocks(queue)

	gcRound := k.dag.GCRound()

	var accepted []dgconsensus.Block
	var errs []error
	var belowGC int
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]

		ref := b.Ref()
		if k.suspended.Contains(ref) {
			continue
		}

		ok, err := k.dag.AcceptBlock(b)
		if err != nil {
			var mae *dgconsensus.MissingAncestorError
			if errors.As(err, &mae) {
				if k.suspended.Suspend(b, mae.Missing) {
					glog.RA(k.log, b.Round, uint16(b.Author)).Debug(
						"Suspended block with missing ancestors",
						"missing", mae.Missing,
					)
				}
				continue
			}
			errs = append(errs, err)
			continue
		}
		if !ok {
			if gcRound > 0 && b.Round <= gcRound {
				belowGC++
			}
			continue
		}

		accepted = append(accepted, b)
		queue = append(queue, k.suspended.Arrived(ref)...)
	}

	k.prom.Accepted(len(accepted))
	k.prom.Dropped("below_gc", belowGC)
	k.prom.Dropped("rejected", len(errs))

	return accepted, errors.Join(errs...)
}

// advance commits everything decidable,
// then collects garbage and retries any suspended blocks that GC released.
//
// A panic with an invariant violation from the decision engine
// is returned as an error.
func (k *kernel) advance(ctx context.Context) (err error) {
	defer trace.StartRegion(ctx, "advance").End()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ive, ok := r.(*dgconsensus.InvariantViolationError)
		if !ok {
			panic(r)
		}
		err = ive
	}()

	for {
		if err := k.decideAndCommit(ctx); err != nil {
			return err
		}

		ready := k.collectGarbage()
		if len(ready) == 0 {
			return nil
		}
		accepted, err := k.acceptBlocks(ready)
		if err != nil {
			k.log.Debug("Released blocks were rejected", "err", err)
		}
		if len(accepted) == 0 {
			return nil
		}
		if err := k.persist(ctx, "save_blocks", func(ctx context.Context) error {
			return k.blockStore.SaveBlocks(ctx, accepted)
		}); err != nil {
			return err
		}
	}
}

// decideAndCommit decides leaders, linearizes the committed ones,
// persists and queues the commits, and feeds the scorer.
//
// A batch never extends past the commit that closes a scoring window,
// so the leaders after it are decided under the newly published scores.
func (k *kernel) decideAndCommit(ctx context.Context) error {
	for {
		decided := k.committer.TryDecide(k.lastDecided)
		if len(decided) == 0 {
			return nil
		}

		decided, truncated := truncateAtScoreUpdate(decided, k.scorer.CommitsUntilUpdate())

		var leaders []dgconsensus.Block
		for _, d := range decided {
			k.prom.Decided(d.DecisionLabel())
			if d.Kind == dgcommit.Commit {
				leaders = append(leaders, d.Block)
			}
		}

		timer := k.prom.CommitBatchTimer()
		subs, err := k.linearizer.HandleCommit(leaders)
		if err != nil {
			return err
		}

		for _, sd := range subs {
			if err := k.persist(ctx, "save_commit", func(ctx context.Context) error {
				return k.commitStore.SaveCommit(ctx, sd.Commit)
			}); err != nil {
				return err
			}
			k.lastCommit = sd.Commit

			if k.commitOut != nil {
				k.outbox = append(k.outbox, sd)
			}

			scores, ok, err := k.scorer.Add(sd.Commit)
			if err != nil {
				return fmt.Errorf("failed to score commit %d: %w", sd.Commit.Index, err)
			}
			if ok {
				// Leaders through this commit's round were elected under the old scores.
				from := sd.Commit.Leader.Round + 1
				if err := k.schedule.Publish(scores, from); err != nil {
					return fmt.Errorf("failed to publish scores: %w", err)
				}
				k.log.Info("Published reputation scores", "scores", scores, "from_round", from)
			}
		}
		timer.ObserveDuration()
		k.prom.Committed(len(subs))

		// Only now that every commit is durable.
		k.lastDecided = decided[len(decided)-1].Slot

		if !truncated {
			return nil
		}
	}
}

// truncateAtScoreUpdate cuts decided after the limit'th commit.
// It reports whether anything was cut.
func truncateAtScoreUpdate(decided []dgcommit.DecidedLeader, limit int) ([]dgcommit.DecidedLeader, bool) {
	n := 0
	for i, d := range decided {
		if d.Kind != dgcommit.Commit {
			continue
		}
		n++
		if n == limit {
			return decided[:i+1], i+1 < len(decided)
		}
	}
	return decided, false
}

// collectGarbage evicts DAG state and suspended blocks at or below the GC round.
// It returns suspended blocks that no longer wait on anything.
func (k *kernel) collectGarbage() []dgconsensus.Block {
	gcRound := k.dag.GCRound()
	if gcRound == 0 {
		return nil
	}

	evicted := k.dag.EvictBelow(gcRound)
	dropped, ready := k.suspended.PruneAtOrBelow(gcRound)
	k.prom.Dropped("below_gc", dropped)

	if evicted > 0 || dropped > 0 {
		k.log.Debug(
			"Collected garbage",
			"gc_round", gcRound,
			"evicted", evicted,
			"dropped_suspended", dropped,
			"released", len(ready),
		)
	}
	return ready
}

// persist runs fn until it succeeds, backing off between attempts.
// Writes that can never succeed are not retried.
func (k *kernel) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	defer trace.StartRegion(ctx, op).End()

	b := backoff.WithContext(k.newBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var gap dgstore.CommitIndexGapError
		var ow dgstore.OverwriteError
		if errors.As(err, &gap) || errors.As(err, &ow) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, d time.Duration) {
		k.prom.PersistRetry(op)
		k.log.Warn("Storage write failed; retrying", "op", op, "err", err, "delay", d)
	})
	if err != nil {
		return &dgconsensus.StorageError{Op: op, Err: err}
	}
	return nil
}

func (k *kernel) status() Status {
	return Status{
		LastCommitIndex:      k.lastCommit.Index,
		LastDecided:          k.lastDecided,
		HighestAcceptedRound: k.dag.HighestAcceptedRound(),
		GCRound:              k.dag.GCRound(),
		DAGBlocks:            k.dag.Len(),
		SuspendedBlocks:      k.suspended.Len(),
		Scores:               k.schedule.Scores(),
	}
}

func (k *kernel) handleBlockRequest(req blockRequest) {
	out := make([]dgconsensus.Block, len(req.Refs))
	for i, ref := range req.Refs {
		if b, ok := k.dag.GetBlock(ref); ok {
			out[i] = b
		}
	}

	// Buffered.
	req.Resp <- out
}

func (k *kernel) updateMetrics() {
	m := Metrics{
		LastCommitIndex:      k.lastCommit.Index,
		LastDecidedRound:     k.lastDecided.Round,
		LastDecidedAuthor:    uint16(k.lastDecided.Author),
		HighestAcceptedRound: k.dag.HighestAcceptedRound(),
		GCRound:              k.dag.GCRound(),
		DAGBlocks:            k.dag.Len(),
		SuspendedBlocks:      k.suspended.Len(),
	}

	k.prom.Set(m)
	if k.mc != nil {
		k.mc.Update(m)
	}
}
