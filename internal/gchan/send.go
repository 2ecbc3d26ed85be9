// Package gchan contains context-aware channel helpers
// with consistent log output on cancellation.
package gchan

import (
	"context"
	"log/slog"
)

// SendC sends val to out unless ctx is canceled first.
// On cancellation it logs "Context canceled while " + during and reports false.
func SendC[T any](ctx context.Context, log *slog.Logger, out chan<- T, val T, during string) (sent bool) {
	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return false
	case out <- val:
		return true
	}
}

// RecvC receives from in unless ctx is canceled first.
// On cancellation it logs "Context canceled while " + during
// and returns the zero value of T with false.
func RecvC[T any](ctx context.Context, log *slog.Logger, in <-chan T, during string) (val T, received bool) {
	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return val, false
	case val := <-in:
		return val, true
	}
}

// ReqResp sends reqValue on reqChan and then waits for a value on respChan.
// It is shorthand for synchronous requests into a kernel goroutine.
func ReqResp[T, U any](
	ctx context.Context, log *slog.Logger,
	reqChan chan<- T, reqValue T,
	respChan <-chan U,
	reqRespType string,
) (respVal U, ok bool) {
	if !SendC(ctx, log, reqChan, reqValue, "making "+reqRespType+" request") {
		return respVal, false
	}

	return RecvC(ctx, log, respChan, "receiving "+reqRespType+" response")
}
