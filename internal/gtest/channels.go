// Package gtest holds small helpers shared by tests across the module.
package gtest

import (
	"time"
)

// TestingFatalHelper is the subset of [testing.TB] used by the channel helpers.
type TestingFatalHelper interface {
	Helper()

	Fatalf(format string, args ...any)
}

// ReceiveSoon receives a value from ch,
// failing the test if nothing arrives within a short scaled timeout.
func ReceiveSoon[T any](tb TestingFatalHelper, ch <-chan T) T {
	tb.Helper()
	return ReceiveOrTimeout(tb, ch, ScaleMs(250))
}

// ReceiveOrTimeout is like [ReceiveSoon] with an explicit timeout.
func ReceiveOrTimeout[T any](tb TestingFatalHelper, ch <-chan T, timeout ScaledDuration) T {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("refusing to receive from nil channel %T", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(timeout))
	defer timer.Stop()

	select {
	case <-timer.C:
		tb.Fatalf(
			"timed out receiving from %T; raise GDAG_TEST_TIME_FACTOR (currently %d) if this only flakes on one machine",
			ch, TimeFactor,
		)
		panic("unreachable")
	case x := <-ch:
		return x
	}
}

// SendSoon sends x to ch,
// failing the test if the send blocks for longer than a short scaled timeout.
func SendSoon[T any](tb TestingFatalHelper, ch chan<- T, x T) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("refusing to send to nil channel %T", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(ScaleMs(250)))
	defer timer.Stop()

	select {
	case <-timer.C:
		tb.Fatalf("timed out sending to %T", ch)
		panic("unreachable")
	case ch <- x:
	}
}

// NotSending fails the test if a value is immediately available on ch.
func NotSending[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()

	select {
	case x := <-ch:
		tb.Fatalf("no value should have been sent on %T; got %v", ch, x)
	default:
	}
}
