package gdagcmd_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gordian-engine/gdag/cmd/gdag/internal/gdagcmd"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgengine"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	status  dgengine.Status
	scores  dgconsensus.ReputationScores
	commits map[uint32]dgconsensus.CommittedSubDag
	err     error
}

func (f fakeEngine) Status(context.Context) (dgengine.Status, error) {
	return f.status, f.err
}

func (f fakeEngine) Scores(context.Context) (dgconsensus.ReputationScores, error) {
	return f.scores, f.err
}

func (f fakeEngine) Commit(_ context.Context, idx uint32) (dgconsensus.CommittedSubDag, error) {
	if f.err != nil {
		return dgconsensus.CommittedSubDag{}, f.err
	}
	sd, ok := f.commits[idx]
	if !ok {
		return dgconsensus.CommittedSubDag{}, fmt.Errorf("%w: index %d", dgengine.ErrCommitNotFound, idx)
	}
	return sd, nil
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestRouter(t *testing.T) {
	t.Parallel()

	fx, err := gdagcmd.NewCommitteeFixture("gdag", 4)
	require.NoError(t, err)
	leader := fx.SignedBlock(1, 1, 1000, fx.GenesisRefs(), []byte("hello"))

	e := fakeEngine{
		status: dgengine.Status{
			LastCommitIndex:      1,
			LastDecided:          leader.Slot(),
			HighestAcceptedRound: 3,
			DAGBlocks:            16,
		},
		scores: dgconsensus.ReputationScores{
			Scores:      []uint64{1, 2, 3, 4},
			CommitRange: dgconsensus.CommitRange{Start: 1, End: 1},
		},
		commits: map[uint32]dgconsensus.CommittedSubDag{
			1: {
				Commit: dgconsensus.Commit{
					Index:       1,
					Leader:      leader.Ref(),
					Rounds:      dgconsensus.RoundRange{Start: 1, End: 1},
					Blocks:      []dgconsensus.BlockRef{leader.Ref()},
					TimestampMs: leader.TimestampMs,
				},
				Blocks: []dgconsensus.Block{leader},
			},
		},
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "gdag_test_total"}))

	h := gdagcmd.NewRouter(slogt.New(t), gdagcmd.HTTPServerConfig{Engine: e, Gatherer: reg})

	t.Run("status", func(t *testing.T) {
		code, body := get(t, h, "/status")
		require.Equal(t, http.StatusOK, code)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		require.Equal(t, float64(1), got["LastCommitIndex"])
		require.Equal(t, float64(3), got["HighestAcceptedRound"])
		require.Equal(t, float64(16), got["DAGBlocks"])
		require.Equal(t, leader.Slot().String(), got["LastDecided"])
	})

	t.Run("scores", func(t *testing.T) {
		code, body := get(t, h, "/scores")
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"CommitStart":1,"CommitEnd":1,"Scores":[1,2,3,4]}`, body)
	})

	t.Run("commit", func(t *testing.T) {
		code, body := get(t, h, "/commits/1")
		require.Equal(t, http.StatusOK, code)

		var got struct {
			Index  uint32
			Leader string
			Blocks []struct {
				Ref     string
				Payload []byte
			}
		}
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		require.Equal(t, uint32(1), got.Index)
		require.Equal(t, leader.Ref().String(), got.Leader)
		require.Len(t, got.Blocks, 1)
		require.Equal(t, []byte("hello"), got.Blocks[0].Payload)
	})

	t.Run("missing commit", func(t *testing.T) {
		code, _ := get(t, h, "/commits/2")
		require.Equal(t, http.StatusNotFound, code)

		code, _ = get(t, h, "/commits/0")
		require.Equal(t, http.StatusBadRequest, code)

		code, _ = get(t, h, "/commits/abc")
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get(t, h, "/metrics")
		require.Equal(t, http.StatusOK, code)
		require.True(t, strings.Contains(body, "gdag_test_total"))
	})
}

func TestRouter_stoppedEngine(t *testing.T) {
	t.Parallel()

	h := gdagcmd.NewRouter(slogt.New(t), gdagcmd.HTTPServerConfig{
		Engine: fakeEngine{err: dgengine.ErrStopped},
	})

	code, _ := get(t, h, "/status")
	require.Equal(t, http.StatusServiceUnavailable, code)

	// No gatherer, no metrics route.
	code, _ = get(t, h, "/metrics")
	require.Equal(t, http.StatusNotFound, code)
}

func TestHTTPServer_servesUntilCanceled(t *testing.T) {
	t.Parallel()

	n, err := gdagcmd.StartNode(context.Background(), slogt.New(t), testConfig())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, n.Stop())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := gdagcmd.NewHTTPServer(ctx, slogt.New(t), gdagcmd.HTTPServerConfig{
		Listener: ln,
		Engine:   n.Engine,
	})

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	cancel()
	h.Wait()
}
