package gchan_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gdag/internal/gchan"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

func TestSendC_canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.False(t, gchan.SendC(ctx, slogt.New(t), make(chan int), 1, "testing"))
}

func TestReqResp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	req := make(chan int)
	resp := make(chan string, 1)

	go func() {
		n := <-req
		if n == 2 {
			resp <- "two"
		}
	}()

	got, ok := gchan.ReqResp(ctx, slogt.New(t), req, 2, resp, "number")
	require.True(t, ok)
	require.Equal(t, "two", got)
}
