package gdagcmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgengine"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineReader is the read-only view of [*dgengine.Engine] served over HTTP.
type EngineReader interface {
	Status(ctx context.Context) (dgengine.Status, error)
	Scores(ctx context.Context) (dgconsensus.ReputationScores, error)
	Commit(ctx context.Context, idx uint32) (dgconsensus.CommittedSubDag, error)
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Engine EngineReader

	// Gatherer backs /metrics. The route is omitted if nil.
	Gatherer prometheus.Gatherer
}

// NewHTTPServer serves cfg.Listener until ctx is canceled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: NewRouter(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

// NewRouter returns the HTTP routes for cfg without starting a server.
func NewRouter(log *slog.Logger, cfg HTTPServerConfig) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/status", handleStatus(log, cfg.Engine)).Methods("GET")
	r.HandleFunc("/scores", handleScores(log, cfg.Engine)).Methods("GET")
	r.HandleFunc("/commits/{index:[0-9]+}", handleCommit(log, cfg.Engine)).Methods("GET")

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

type jsonStatus struct {
	LastCommitIndex uint32
	LastDecided     string

	HighestAcceptedRound uint32
	GCRound              uint32

	DAGBlocks       int
	SuspendedBlocks int
}

func handleStatus(log *slog.Logger, e EngineReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := e.Status(req.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeJSON(log, w, jsonStatus{
			LastCommitIndex: s.LastCommitIndex,
			LastDecided:     s.LastDecided.String(),

			HighestAcceptedRound: s.HighestAcceptedRound,
			GCRound:              s.GCRound,

			DAGBlocks:       s.DAGBlocks,
			SuspendedBlocks: s.SuspendedBlocks,
		})
	}
}

type jsonScores struct {
	// Absent until the first scoring window closes.
	CommitStart, CommitEnd uint32 `json:",omitempty"`

	Scores []uint64
}

func handleScores(log *slog.Logger, e EngineReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := e.Scores(req.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}

		out := jsonScores{Scores: s.Scores}
		if !s.IsEmpty() {
			out.CommitStart = s.CommitRange.Start
			out.CommitEnd = s.CommitRange.End
		}
		if out.Scores == nil {
			out.Scores = []uint64{}
		}
		writeJSON(log, w, out)
	}
}

type jsonBlock struct {
	Ref         string
	TimestampMs uint64
	Payload     []byte
}

type jsonCommit struct {
	Index       uint32
	Leader      string
	RoundStart  uint32
	RoundEnd    uint32
	TimestampMs uint64

	Blocks []jsonBlock
}

func handleCommit(log *slog.Logger, e EngineReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		idx, err := strconv.ParseUint(mux.Vars(req)["index"], 10, 32)
		if err != nil || idx == 0 {
			http.Error(w, "commit index must be a positive 32-bit integer", http.StatusBadRequest)
			return
		}

		sd, err := e.Commit(req.Context(), uint32(idx))
		if err != nil {
			writeEngineError(w, err)
			return
		}

		c := sd.Commit
		out := jsonCommit{
			Index:       c.Index,
			Leader:      c.Leader.String(),
			RoundStart:  c.Rounds.Start,
			RoundEnd:    c.Rounds.End,
			TimestampMs: c.TimestampMs,

			Blocks: make([]jsonBlock, len(sd.Blocks)),
		}
		for i, b := range sd.Blocks {
			out.Blocks[i] = jsonBlock{
				Ref:         b.Ref().String(),
				TimestampMs: b.TimestampMs,
				Payload:     b.Payload,
			}
		}
		writeJSON(log, w, out)
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dgengine.ErrCommitNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dgengine.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to encode response", "err", err)
	}
}
