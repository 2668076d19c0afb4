// Package server exposes stored polygon sets and batch queries over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"polyindex/internal/metrics"
	"polyindex/internal/models"
	"polyindex/internal/query"
	"polyindex/internal/storage"
)

const maxBodyBytes = 64 << 20

// Config holds the server settings
type Config struct {
	Port        int
	IdleTimeout time.Duration
	Workers     int
	Logger      *slog.Logger
}

// Server represents the query server
type Server struct {
	storage     *storage.Storage
	trees       *treeCache
	port        int
	idleTimeout time.Duration
	workers     int
	logger      *slog.Logger
	httpServer  *http.Server

	// Idle timeout management
	mu           sync.Mutex
	lastActivity time.Time
	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// New creates a new Server backed by the database at dbPath
func New(dbPath string, cfg Config) (*Server, error) {
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		storage:      store,
		trees:        newTreeCache(store),
		port:         cfg.Port,
		idleTimeout:  cfg.IdleTimeout,
		workers:      cfg.Workers,
		logger:       logger,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
	}

	return s, nil
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sets", s.handleSets)
	mux.HandleFunc("GET /api/sets/{name}", s.handleSet)
	mux.HandleFunc("DELETE /api/sets/{name}", s.handleDeleteSet)
	mux.HandleFunc("GET /api/queries", s.handleQueries)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// Start starts the server and blocks until it shuts down
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start idle timeout checker
	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker()
	}

	// Handle shutdown signals
	go s.handleShutdownSignals()

	s.logger.Info("server_start", "port", s.port, "idle_timeout", s.idleTimeout.String())
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server as if the idle timeout had fired
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Close releases the database without starting or stopping the listener
func (s *Server) Close() error {
	return s.storage.Close()
}

func (s *Server) handleShutdownSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		s.logger.Info("server_shutdown", "reason", "signal", "signal", sig.String())
	case <-s.shutdownChan:
		s.logger.Info("server_shutdown", "reason", "idle_timeout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("server_shutdown_error", "error", err)
	}
	s.storage.Close()
}

func (s *Server) idleTimeoutChecker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.idleFor() >= s.idleTimeout {
				s.Shutdown()
				return
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *Server) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// API Handlers

type setResponse struct {
	*models.PolygonSet
	Cached        bool               `json:"cached"`
	TreeDepth     int                `json:"tree_depth,omitempty"`
	TreeNodes     int                `json:"tree_nodes,omitempty"`
	RecentQueries []*models.QueryRun `json:"recent_queries,omitempty"`
}

func (s *Server) handleSets(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	sets, err := s.storage.ListSets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sets == nil {
		sets = []*models.PolygonSet{}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	name := r.PathValue("name")
	set, err := s.storage.GetSet(name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := setResponse{PolygonSet: set}
	if ix, ok := s.trees.cached(name); ok {
		resp.Cached = true
		resp.TreeDepth = ix.tree.Depth()
		resp.TreeNodes = ix.tree.NodeCount()
	}
	if runs, err := s.storage.ListQueries(name, 10); err == nil {
		resp.RecentQueries = runs
	} else {
		s.logger.Warn("list_queries_failed", "set", name, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	name := r.PathValue("name")
	if err := s.storage.DeleteSet(name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.trees.evict(name)
	s.logger.Info("set_deleted", "set", name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	runs, err := s.storage.ListQueries(r.URL.Query().Get("set"), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*models.QueryRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type queryRequest struct {
	Set        string    `json:"set"`
	Kinds      []string  `json:"kinds,omitempty"`
	Xs         []float64 `json:"xs"`
	Ys         []float64 `json:"ys"`
	Exhaustive bool      `json:"exhaustive,omitempty"`
}

type queryResponse struct {
	ID         string             `json:"id"`
	Set        string             `json:"set"`
	Kinds      []models.QueryKind `json:"kinds"`
	NumPoints  int                `json:"num_points"`
	Exhaustive bool               `json:"exhaustive"`
	DurationMs float64            `json:"duration_ms"`
	Results    *models.Results    `json:"results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		metrics.QueryErrorsTotal.Inc()
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Set == "" {
		metrics.QueryErrorsTotal.Inc()
		writeError(w, http.StatusBadRequest, errors.New("set is required"))
		return
	}
	kinds, err := models.ParseQueryKinds(req.Kinds)
	if err != nil {
		metrics.QueryErrorsTotal.Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}
	batch := models.Batch{Xs: req.Xs, Ys: req.Ys}
	if err := batch.Validate(); err != nil {
		metrics.QueryErrorsTotal.Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ix, err := s.trees.get(req.Set)
	if err != nil {
		metrics.QueryErrorsTotal.Inc()
		writeError(w, statusFor(err), err)
		return
	}

	var target query.Index = ix.tree
	if req.Exhaustive {
		ex, err := ix.exhaustiveIndex()
		if err != nil {
			metrics.QueryErrorsTotal.Inc()
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		target = ex
	}

	engine := query.NewEngine(target, query.WithWorkers(s.workers), query.WithLogger(s.logger))
	start := time.Now()
	res, err := engine.Run(r.Context(), batch, kinds...)
	elapsed := time.Since(start)
	if err != nil {
		metrics.QueryErrorsTotal.Inc()
		writeError(w, statusFor(err), err)
		return
	}

	for _, k := range kinds {
		metrics.QueriesTotal.WithLabelValues(string(k)).Inc()
	}
	metrics.PointsTotal.Add(float64(batch.Len()))
	metrics.QueryDurationMs.Observe(float64(elapsed.Microseconds()) / 1000)

	run := &models.QueryRun{
		SetName:    req.Set,
		Kinds:      kinds,
		NumPoints:  batch.Len(),
		Exhaustive: req.Exhaustive,
		Duration:   elapsed,
	}
	if err := s.storage.RecordQuery(run); err != nil {
		s.logger.Warn("record_query_failed", "set", req.Set, "error", err)
	}

	s.logger.Info("query",
		"id", run.ID,
		"set", req.Set,
		"points", batch.Len(),
		"kinds", kinds,
		"exhaustive", req.Exhaustive,
		"duration_ms", elapsed.Milliseconds(),
	)

	writeJSON(w, http.StatusOK, queryResponse{
		ID:         run.ID,
		Set:        req.Set,
		Kinds:      kinds,
		NumPoints:  batch.Len(),
		Exhaustive: req.Exhaustive,
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		Results:    res,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrLengthMismatch), errors.Is(err, models.ErrNonFinite):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
