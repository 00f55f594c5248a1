// Package server exposes open preview sessions over HTTP: JSON render
// states, PNG images, build generation switches and websocket change
// notifications.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"preview_engine/core"
	"preview_engine/db"
	"preview_engine/metrics"
	"preview_engine/preview"
	"preview_engine/session"
	"preview_engine/shutdown"
)

// Config holds the HTTP settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// LogSkipPaths are not request-logged.
	LogSkipPaths []string
	// AccessTokenHash enables bearer token auth when not empty.
	AccessTokenHash string
	// MaxWait bounds ?wait=true image requests.
	MaxWait time.Duration

	Version core.VersionInfo
	Hub     HubConfig
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         3070,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		LogSkipPaths: []string{"/health"},
		MaxWait:      45 * time.Second,
		Version:      core.GetVersionInfo(),
		Hub:          DefaultHubConfig(),
	}
}

// HistoryReader is the part of db.History used by /api/history.
type HistoryReader interface {
	Recent(ctx context.Context, q db.RenderQuery) ([]db.RenderRecord, error)
}

// Pinger reports storage health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpenFunc opens a session for a manifest directory with the daemon's
// loader and observers.
type OpenFunc func(ctx context.Context, manifestDir string) (*session.Session, error)

// Deps are the collaborators the server reads from. Sessions is required.
type Deps struct {
	Sessions *session.Registry
	Open     OpenFunc
	Metrics  metrics.Collector
	History  HistoryReader
	DB       Pinger
	Tracker  *shutdown.OperationTracker
}

// Server is previewd's HTTP surface.
//
// This organism composes:
//   - session.Registry for the open sessions
//   - Hub for websocket notifications, fed by session listeners
//   - request logging, operation tracking and token auth middleware
//
// Usage:
//
//	srv, err := server.NewServer(cfg, deps, logger)
//	go srv.Start(ctx)
//	manager.Register("http", shutdown.PriorityServer, shutdown.HTTPServer(logger, srv.HTTPServer()))
type Server struct {
	config Config
	deps   Deps
	logger *zap.Logger

	mux        *http.ServeMux
	hub        *Hub
	httpServer *http.Server
}

// NewServer builds the server and subscribes to every session the registry
// opens from now on.
func NewServer(config Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("server: Deps.Sessions is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AccessTokenHash != "" {
		if err := ValidateTokenHash(config.AccessTokenHash); err != nil {
			return nil, fmt.Errorf("server: access token hash: %w", err)
		}
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.hub = NewHub(config.Hub, s.initialMessage, logger.Named("ws"))
	s.setupRoutes()

	addr := net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	deps.Sessions.OnOpen(s.watch)

	logger.Info("HTTP server created",
		zap.String("addr", addr),
		zap.Bool("auth_enabled", config.AccessTokenHash != ""))
	return s, nil
}

// watch forwards a session's change notifications to websocket clients.
func (s *Server) watch(sess *session.Session) {
	id := sess.ID().String()
	sess.Subscribe(func(keys []preview.Key) {
		s.hub.Broadcast(NewPreviewsChangedMessage(id, keys))
	})
}

func (s *Server) initialMessage() WSMessage {
	return NewWSMessage(MessageTypeInitial, InitialData{Sessions: s.deps.Sessions.List()})
}

// Handler returns the root handler with middleware applied:
// logging -> operation tracking -> auth -> routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.config.AccessTokenHash != "" {
		h = newTokenAuth(s.config.AccessTokenHash, s.logger).Middleware(h)
	}
	h = trackOperations(s.deps.Tracker, h)
	return requestLogger(s.logger.Named("http"), s.config.LogSkipPaths, h)
}

// HTTPServer returns the underlying server for shutdown registration.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the hub and serves until the server is shut down. It returns
// nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	s.logger.Info("HTTP server starting", zap.String("addr", ln.Addr().String()))
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}
