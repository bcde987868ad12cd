package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/engine"
	"github.com/hochfrequenz/vacancy-verifier/internal/extract"
	"github.com/hochfrequenz/vacancy-verifier/internal/resultstore"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// maxDocumentSize bounds POST /api/extract uploads
const maxDocumentSize = 32 << 20

// Options configures a Server
type Options struct {
	Engine    *engine.Engine
	Results   resultstore.Repository
	Sites     engine.SiteSource
	Extractor extract.Extractor
	Addr      string
	Logger    *slog.Logger

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Server is the HTTP API server. It also owns the telemetry channel every
// run started through it reports on.
type Server struct {
	engine    *engine.Engine
	results   resultstore.Repository
	sites     engine.SiteSource
	extractor extract.Extractor
	addr      string
	logger    *slog.Logger

	mux       *http.ServeMux
	sseHub    *SSEHub
	observers *ObserverHub
	channel   *telemetry.Channel

	// runCtx parents runs started over the API. Set by ListenAndServe.
	ctxMu  sync.Mutex
	runCtx context.Context
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sites == nil {
		opts.Sites = engine.SiteList(nil)
	}

	s := &Server{
		engine:    opts.Engine,
		results:   opts.Results,
		sites:     opts.Sites,
		extractor: opts.Extractor,
		addr:      opts.Addr,
		logger:    logger,
		mux:       http.NewServeMux(),
		sseHub:    NewSSEHub(),
		runCtx:    context.Background(),
	}
	s.observers = NewObserverHub(ObserverConfig{
		HeartbeatInterval: opts.HeartbeatInterval,
		HeartbeatTimeout:  opts.HeartbeatTimeout,
	}, s, logger)
	s.channel = telemetry.NewChannel(
		telemetry.NewMultiSink(s.observers, s.sseHub, telemetry.LogSink{Logger: logger}),
		telemetry.WithLogger(logger),
	)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/verdicts", s.listVerdictsHandler())
	s.mux.HandleFunc("/api/verdicts/", s.getVerdictHandler())
	s.mux.HandleFunc("/api/runs", s.runsHandler())
	s.mux.HandleFunc("/api/runs/stop", s.stopRunHandler())
	s.mux.HandleFunc("/api/sites", s.sitesHandler())
	s.mux.HandleFunc("/api/extract", s.extractHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/ws", s.observers.HandleWebSocket)
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Channel returns the telemetry channel runs report on
func (s *Server) Channel() *telemetry.Channel {
	return s.channel
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Runs started over the API are cancelled together with ctx.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.ctxMu.Lock()
	s.runCtx = ctx
	s.ctxMu.Unlock()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.sseHub.Close()
	s.observers.Close()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// Close stops the hubs and flushes the telemetry channel
func (s *Server) Close() {
	s.sseHub.Close()
	s.observers.Close()
	s.channel.Close()
}

// StartVerification starts an asynchronous run on the server's channel
func (s *Server) StartVerification(tasks []*domain.PropertyTask) error {
	s.ctxMu.Lock()
	ctx := s.runCtx
	s.ctxMu.Unlock()
	return s.engine.Start(ctx, tasks, s.channel)
}

// StopVerification asks the active run to stop
func (s *Server) StopVerification() bool {
	return s.engine.Stop()
}

// Snapshot returns the live run state
func (s *Server) Snapshot() telemetry.Snapshot {
	return s.channel.Snapshot()
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
