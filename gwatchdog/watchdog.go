package gwatchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Watchdog owns a context that is canceled when any monitored subsystem
// fails to respond in time, or when [*Watchdog.Terminate] is called.
type Watchdog struct {
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	nop bool

	wg sync.WaitGroup
}

// NewWatchdog returns a Watchdog and its context, derived from ctx.
func NewWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	wCtx, cancel := context.WithCancelCause(ctx)
	return &Watchdog{
		log:    log,
		ctx:    wCtx,
		cancel: cancel,
	}, wCtx
}

// NewNopWatchdog returns a Watchdog whose Monitor calls return nil channels.
// Terminate still cancels the returned context.
// It is intended for tests.
func NewNopWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	w, wCtx := NewWatchdog(ctx, log)
	w.nop = true
	return w, wCtx
}

// Wait blocks until every monitor goroutine has returned.
// Monitors stop when the watchdog context is canceled.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

// Terminate cancels the watchdog context with a [ForcedTerminationError].
func (w *Watchdog) Terminate(reason string) {
	w.cancel(ForcedTerminationError{Reason: reason})
}

// Monitor starts polling a subsystem according to cfg.
// The subsystem must receive from the returned channel in its main loop
// and close each [Signal.Alive] promptly.
//
// A nop watchdog returns a nil channel, which blocks forever in a select.
func (w *Watchdog) Monitor(cfg MonitorConfig) <-chan Signal {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("(*Watchdog).Monitor: invalid MonitorConfig: %w", err))
	}

	if w.nop {
		return nil
	}

	sigCh := make(chan Signal)
	w.wg.Add(1)
	go monitor(w.ctx, w.log.With("target", cfg.Name), cfg, &w.wg, sigCh, w.cancel)
	return sigCh
}

// Signal is a liveness probe sent to a monitored subsystem.
type Signal struct {
	// Alive must be closed by the subsystem to acknowledge the probe.
	Alive chan<- struct{}
}
