package gtest_test

import (
	"fmt"
	"testing"

	"github.com/gordian-engine/gdag/internal/gtest"
	"github.com/stretchr/testify/require"
)

type fakeTB struct {
	failed string
}

func (f *fakeTB) Helper() {}

func (f *fakeTB) Fatalf(format string, args ...any) {
	f.failed = fmt.Sprintf(format, args...)
}

func TestReceiveSoon(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 3
	require.Equal(t, 3, gtest.ReceiveSoon(t, ch))

	var tb fakeTB
	require.Panics(t, func() {
		gtest.ReceiveOrTimeout(&tb, make(chan int), gtest.ScaleMs(1))
	})
	require.Contains(t, tb.failed, "timed out")
}

func TestNotSending(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	gtest.NotSending(t, ch)

	ch <- 1
	var tb fakeTB
	gtest.NotSending(&tb, ch)
	require.Contains(t, tb.failed, "got 1")
}
