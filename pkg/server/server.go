// Package server exposes the part creation service over HTTP: a small
// JSON API, a websocket stream of run events, health and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/history"
	"github.com/partforge/partforge/pkg/onshape"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	DrainTimeout time.Duration

	Service *agent.Service
	History *history.Store
	CAD     *onshape.Client
	Metrics http.Handler
	Logger  zerolog.Logger

	// Stream carries run events to websocket subscribers. When the caller
	// also feeds it to the runner as an event sink, pass the shared
	// instance here; otherwise the server creates its own.
	Stream *Stream
}

// Server is the HTTP daemon.
type Server struct {
	config    Config
	server    *http.Server
	stream    *Stream
	logger    zerolog.Logger
	startTime time.Time

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// New creates the server. History, CAD and Metrics are optional; their
// endpoints degrade when absent.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("agent service is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8320
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}

	stream := cfg.Stream
	if stream == nil {
		stream = NewStream(cfg.Logger)
	}

	return &Server{
		config:    cfg,
		stream:    stream,
		logger:    cfg.Logger.With().Str("component", "server").Logger(),
		startTime: time.Now(),
	}, nil
}

// Stream returns the websocket event stream so callers can register it
// as a run event sink.
func (s *Server) Stream() *Stream {
	return s.stream
}

// Start runs the server until Stop is called. It blocks.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parts", s.handleCreatePart)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/tools", s.handleTools)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.config.Metrics != nil {
		mux.Handle("/metrics", s.config.Metrics)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.config.Host).
		Int("port", s.config.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server: new requests are refused, in-flight
// requests drain up to the configured timeout, then event stream clients
// are disconnected and the listener closes.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.config.DrainTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	// Websocket connections are hijacked and invisible to Shutdown.
	s.stream.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// track refuses requests during shutdown and counts the rest as
// in-flight. Callers must defer the returned function when ok.
func (s *Server) track(w http.ResponseWriter) (func(), bool) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return nil, false
	}
	s.shutdownMu.RUnlock()

	s.inFlightReqs.Add(1)
	return s.inFlightReqs.Done, true
}
