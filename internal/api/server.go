// Package api serves the analysis index over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/iwanhae/qdblocks/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server holds the dependencies for the API server.
type Server struct {
	index  *storage.Index
	server *http.Server
	logger log.Logger
}

// New creates a new API server.
func New(index *storage.Index, port string, logger log.Logger) *Server {
	s := &Server{
		index:  index,
		logger: logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/stats", s.handleStats)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	// CORS handler to allow all origins
	corsMux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		mux.ServeHTTP(w, r)
	})

	s.server = &http.Server{
		Addr:    ":" + port,
		Handler: corsMux,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type statsResponse struct {
	Index map[string]any   `json:"index"`
	Hosts []map[string]any `json:"hosts"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	eg, ctx := errgroup.WithContext(r.Context())
	eg.Go(func() error {
		resp.Index = s.index.Stats(ctx)
		return nil
	})
	eg.Go(func() error {
		hosts, err := s.index.HostUsage(ctx)
		resp.Hosts = hosts
		return err
	})
	if err := eg.Wait(); err != nil {
		level.Error(s.logger).Log("msg", "failed to gather stats", "err", err)
		http.Error(w, fmt.Sprintf("server: failed to gather stats: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		level.Warn(s.logger).Log("msg", "failed to write response", "err", err)
	}
}

// Start runs the API server.
func (s *Server) Start() error {
	level.Info(s.logger).Log("msg", "listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	level.Info(s.logger).Log("msg", "shutting down API server")
	return s.server.Shutdown(ctx)
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Results    []map[string]any `json:"results"`
	DurationMs int64            `json:"duration_ms"`
	SQL        string           `json:"sql"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "server: only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("server: invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "server: missing required field: query", http.StatusBadRequest)
		return
	}

	rows, result, err := s.index.Query(r.Context(), req.Query)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to execute query", "err", err)
		http.Error(w, fmt.Sprintf("server: failed to execute query: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queryResponse{
		Results:    rows,
		DurationMs: result.Duration.Milliseconds(),
		SQL:        result.SQL,
	}); err != nil {
		level.Warn(s.logger).Log("msg", "failed to write response", "err", err)
	}
}
