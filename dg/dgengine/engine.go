// Package dgengine runs the DAG consensus core:
// it accepts blocks, decides leaders, linearizes and persists commits,
// and delivers committed sub-dags in order.
//
// All consensus state is owned by a single kernel goroutine.
// Engine methods are safe for concurrent use;
// they communicate with the kernel over channels.
package dgengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgengine/internal/dgemetrics"
	"github.com/gordian-engine/gdag/dg/dgleader"
	"github.com/gordian-engine/gdag/dg/dglinear"
	"github.com/gordian-engine/gdag/dg/dgrecovery"
	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/gwatchdog"
	"github.com/gordian-engine/gdag/internal/gchan"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrStopped is returned from Engine methods once the kernel has stopped,
// whether from context cancellation or from a halting error.
var ErrStopped = errors.New("engine stopped")

// ErrCommitNotFound is returned from [*Engine.Commit] for an index
// that has not been committed.
var ErrCommitNotFound = errors.New("commit not found")

// Engine is the entrypoint to a running DAG consensus core.
type Engine struct {
	log *slog.Logger

	rCfg dgrecovery.Config

	waveLength          uint32
	numLeaders          uint32
	badNodeStakePercent uint32

	verifier dgconsensus.BlockVerifier

	commitOut chan<- dgconsensus.CommittedSubDag

	newBackOff func() backoff.BackOff

	metricsCh chan<- Metrics
	promReg   prometheus.Registerer

	watchdog *gwatchdog.Watchdog

	schedule *dgleader.Schedule

	mc   *dgemetrics.Collector
	prom *dgemetrics.Prometheus

	k *kernel
}

// New recovers state from the configured stores
// and starts the engine's kernel goroutine.
//
// The kernel runs until ctx is canceled or it hits a halting error;
// use [*Engine.Wait] to wait for it and [*Engine.Err] to inspect why it stopped.
func New(ctx context.Context, log *slog.Logger, opts ...Opt) (*Engine, error) {
	e := &Engine{
		log: log,

		waveLength: dgcommit.DefaultWaveLength,
		numLeaders: 1,

		newBackOff: defaultBackOff,
	}

	var err error
	for _, opt := range opts {
		err = errors.Join(err, opt(e, &e.rCfg))
	}
	if err != nil {
		return nil, err
	}

	if err := e.validateSettings(); err != nil {
		return nil, err
	}

	if e.verifier == nil {
		e.verifier = dgconsensus.SignatureVerifier{
			Committee:  e.rCfg.Committee,
			HashScheme: e.rCfg.HashScheme,
		}
	}

	st, err := dgrecovery.Replay(ctx, log.With("e_sys", "recovery"), e.rCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to recover engine state: %w", err)
	}

	e.schedule, err = dgleader.NewSchedule(e.rCfg.Committee, e.numLeaders, uint64(e.badNodeStakePercent))
	if err != nil {
		return nil, fmt.Errorf("failed to create leader schedule: %w", err)
	}
	for _, p := range st.Published {
		if err := e.schedule.Publish(p.Scores, p.FromRound); err != nil {
			return nil, fmt.Errorf("failed to publish recovered scores: %w", err)
		}
	}

	if e.metricsCh != nil {
		e.mc = dgemetrics.NewCollector(ctx, e.metricsCh)
	}
	if e.promReg != nil {
		e.prom = dgemetrics.NewPrometheus(e.promReg)
	}

	e.k = &kernel{
		log: log.With("e_sys", "kernel"),

		dag: st.DAG,
		committer: dgcommit.NewUniversalCommitter(
			log.With("e_sys", "committer"),
			st.DAG, e.schedule,
			dgcommit.UniversalCommitterOptions{
				WaveLength: e.waveLength,
				Pipeline:   true,
			},
		),
		linearizer: dglinear.New(log.With("e_sys", "linearizer"), st.DAG, st.LastCommit),
		schedule:   e.schedule,
		scorer:     st.Scorer,

		blockStore:  e.rCfg.BlockStore,
		commitStore: e.rCfg.CommitStore,

		newBackOff: e.newBackOff,

		mc:   e.mc,
		prom: e.prom,

		suspended: newSuspendedBlocks(),

		lastDecided: st.LastDecided,
		lastCommit:  st.LastCommit,

		commitOut: e.commitOut,

		acceptRequests: make(chan acceptRequest),
		statusRequests: make(chan chan Status),
		blockRequests:  make(chan blockRequest),

		done: make(chan struct{}),
	}
	e.k.stopped, e.k.markStopped = context.WithCancel(context.Background())

	go e.k.mainLoop(ctx, e.watchdog)

	return e, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (e *Engine) validateSettings() error {
	var err error

	if e.rCfg.Committee.Size() == 0 {
		err = errors.Join(err, errors.New("no committee set (use dgengine.WithCommittee)"))
	}

	if e.rCfg.HashScheme == nil {
		err = errors.Join(err, errors.New("no hash scheme set (use dgengine.WithHashScheme)"))
	}

	if e.rCfg.BlockStore == nil {
		err = errors.Join(err, errors.New("no block store set (use dgengine.WithBlockStore)"))
	}

	if e.rCfg.CommitStore == nil {
		err = errors.Join(err, errors.New("no commit store set (use dgengine.WithCommitStore)"))
	}

	if e.watchdog == nil {
		err = errors.Join(err, errors.New("no watchdog set (use dgengine.WithWatchdog)"))
	}

	// A decision looks back up to two waves from the highest round,
	// so GC must not evict blocks that recent.
	if d := e.rCfg.GCDepth; d != 0 && d < 2*e.waveLength {
		err = errors.Join(err, fmt.Errorf(
			"GC depth %d is less than two waves (%d rounds) (use dgengine.WithGCDepth)",
			d, 2*e.waveLength,
		))
	}

	if n := e.rCfg.Committee.Size(); n > 0 && int(e.numLeaders) > n {
		err = errors.Join(err, fmt.Errorf(
			"%d leaders per round exceeds committee size %d (use dgengine.WithNumLeadersPerRound)",
			e.numLeaders, n,
		))
	}

	return err
}

// Wait blocks until the kernel and metrics collector have stopped.
func (e *Engine) Wait() {
	if e.k != nil {
		<-e.k.done
	}
	if e.mc != nil {
		e.mc.Wait()
	}
}

// Err returns the error that halted the engine.
// It returns nil while the engine is running
// and after a stop caused only by context cancellation.
//
// A halted engine must not be restarted without operator attention:
// a [*dgconsensus.InvariantViolationError] means the DAG or storage
// is inconsistent with the commit rule.
func (e *Engine) Err() error {
	select {
	case <-e.k.done:
		return e.k.err
	default:
		return nil
	}
}

// AcceptBlocks verifies blocks and hands the valid ones to the kernel.
//
// It returns after the kernel has accepted and persisted the blocks,
// but before any resulting commits are delivered.
// Blocks whose ancestors are not yet known are held until the ancestors arrive;
// that is not an error.
// The returned error joins every verification failure and rejected block;
// the other blocks are accepted regardless.
func (e *Engine) AcceptBlocks(ctx context.Context, blocks []dgconsensus.Block) error {
	var errs []error
	valid := make([]dgconsensus.Block, 0, len(blocks))
	for _, b := range blocks {
		if err := e.verifier.Verify(b); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, b)
	}
	e.prom.Dropped("invalid", len(errs))

	if len(valid) == 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := e.kernelContext(ctx)
	defer cancel()

	req := acceptRequest{
		Blocks: valid,
		Resp:   make(chan error, 1),
	}
	res, ok := gchan.ReqResp(ctx, e.log, e.k.acceptRequests, req, req.Resp, "accept blocks")
	if !ok {
		// The kernel responds before advancing,
		// so it may have accepted the blocks and then halted.
		select {
		case res = <-req.Resp:
		default:
			return errors.Join(append(errs, context.Cause(ctx))...)
		}
	}

	return errors.Join(append(errs, res)...)
}

// Status is a snapshot of the kernel's progress.
type Status struct {
	LastCommitIndex uint32
	LastDecided     dgconsensus.Slot

	HighestAcceptedRound uint32
	GCRound              uint32

	DAGBlocks       int
	SuspendedBlocks int

	Scores dgconsensus.ReputationScores
}

// Status returns a snapshot of the kernel's progress.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	ctx, cancel := e.kernelContext(ctx)
	defer cancel()

	resp := make(chan Status, 1)
	s, ok := gchan.ReqResp(ctx, e.log, e.k.statusRequests, resp, resp, "status")
	if !ok {
		return Status{}, context.Cause(ctx)
	}
	return s, nil
}

// LastCommitIndex returns the index of the last persisted commit,
// or zero before the first commit.
func (e *Engine) LastCommitIndex(ctx context.Context) (uint32, error) {
	s, err := e.Status(ctx)
	return s.LastCommitIndex, err
}

// HighestAcceptedRound returns the highest round of any accepted block.
func (e *Engine) HighestAcceptedRound(ctx context.Context) (uint32, error) {
	s, err := e.Status(ctx)
	return s.HighestAcceptedRound, err
}

// Scores returns the reputation scores currently driving leader election.
func (e *Engine) Scores(ctx context.Context) (dgconsensus.ReputationScores, error) {
	s, err := e.Status(ctx)
	return s.Scores, err
}

// Commit returns the committed sub-dag with the given index.
// Blocks that have been garbage collected from memory are loaded from the block store.
func (e *Engine) Commit(ctx context.Context, idx uint32) (dgconsensus.CommittedSubDag, error) {
	if idx == 0 {
		return dgconsensus.CommittedSubDag{}, fmt.Errorf("%w: index 0", ErrCommitNotFound)
	}

	c, err := e.rCfg.CommitStore.LoadCommit(ctx, idx)
	if err != nil {
		if errors.Is(err, dgstore.ErrCommitNotFound) {
			return dgconsensus.CommittedSubDag{}, fmt.Errorf("%w: index %d", ErrCommitNotFound, idx)
		}
		return dgconsensus.CommittedSubDag{}, &dgconsensus.StorageError{Op: "load commit", Err: err}
	}

	kCtx, cancel := e.kernelContext(ctx)
	defer cancel()

	req := blockRequest{
		Refs: c.Blocks,
		Resp: make(chan []dgconsensus.Block, 1),
	}
	blocks, ok := gchan.ReqResp(kCtx, e.log, e.k.blockRequests, req, req.Resp, "commit blocks")
	if !ok {
		return dgconsensus.CommittedSubDag{}, context.Cause(kCtx)
	}

	for i, ref := range c.Blocks {
		if blocks[i].Ref() == ref {
			continue
		}
		b, err := e.rCfg.BlockStore.LoadBlock(ctx, ref)
		if err != nil {
			return dgconsensus.CommittedSubDag{}, &dgconsensus.StorageError{
				Op:  fmt.Sprintf("load block %s of commit %d", ref, idx),
				Err: err,
			}
		}
		blocks[i] = b
	}

	return dgconsensus.CommittedSubDag{Commit: c, Blocks: blocks}, nil
}

// Leaders returns the leader slots at round under the current schedule.
func (e *Engine) Leaders(round uint32) []dgconsensus.Slot {
	return e.schedule.Leaders(round)
}

// kernelContext derives a context from ctx
// that is also canceled, with cause [ErrStopped], when the kernel stops.
func (e *Engine) kernelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(e.k.stopped, func() {
		cancel(ErrStopped)
	})
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
