package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"corsserve/config"
	"corsserve/logger"

	"github.com/gorilla/mux"
)

const (
	ServerName = "corsserve"
	Version    = "0.1.0"
)

var (
	ErrNotListening  = errors.New("server is not listening")
	ErrServerStopped = errors.New("server is stopped")
)

type serverState uint8

const (
	stateNew serverState = iota
	stateListening
	stateStopped
)

// Server serves a directory tree over HTTP on the loopback interface.
type Server struct {
	cfg      *config.Config
	router   *mux.Router
	server   *http.Server
	files    http.FileSystem
	listener net.Listener
	log      *logger.Logger
	console  io.Writer

	mu    sync.Mutex
	state serverState
}

type Option func(*Server)

// WithLogger replaces the process-wide logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithConsole sets where the operator-facing lifecycle lines are printed.
func WithConsole(w io.Writer) Option {
	return func(s *Server) {
		s.console = w
	}
}

// WithFileSystem serves fs instead of the configured root directory.
func WithFileSystem(fs http.FileSystem) Option {
	return func(s *Server) {
		s.files = fs
	}
}

// New creates a server for cfg. Nothing is bound until Listen or Run.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		log:     logger.L(),
		console: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.files == nil {
		s.files = http.Dir(cfg.Root)
	}

	s.setupRoutes()

	// Middlewares wrap the router rather than being registered with
	// router.Use, so router-generated responses are covered too.
	s.server = &http.Server{
		Handler: s.LoggingMiddleware(ServerHeaderMiddleware(CORSMiddleware(s.router))),

		// OPTIONS * must reach CORSMiddleware instead of net/http's
		// built-in responder, which sends no headers.
		DisableGeneralOptionsHandler: true,
	}

	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Config returns the effective config. After Listen its port is the bound one.
func (s *Server) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Addr is the host:port being served, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr()
}

// Listen binds the loopback address and prints the startup lines.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateListening:
		return nil
	case stateStopped:
		return ErrServerStopped
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Addr(), err)
	}

	if addr, ok := ln.Addr().(*net.TCPAddr); ok && addr.Port != s.cfg.Port {
		s.cfg = s.cfg.WithPort(addr.Port)
	}
	s.listener = ln
	s.state = stateListening

	s.log.Info("Listening", map[string]interface{}{
		"addr": ln.Addr().String(),
		"root": s.cfg.Root,
	})
	fmt.Fprintf(s.console, "Starting CORS-enabled server on %s\n", s.cfg.URL())
	fmt.Fprintln(s.console, "Press Ctrl+C to stop")

	return nil
}

// Serve accepts connections until Shutdown. A shutdown is not an error.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln, state := s.listener, s.state
	s.mu.Unlock()

	switch state {
	case stateNew:
		return ErrNotListening
	case stateStopped:
		return ErrServerStopped
	}

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires. The listening socket is released either way.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == stateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	ln := s.listener
	s.mu.Unlock()

	s.log.Info("Shutting down server", nil)

	err := s.server.Shutdown(ctx)

	// Serve may never have run, in which case http.Server does not own ln.
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	}

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Run listens if needed, serves until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(s.console, "\nShutting down server...")

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		// Serve can lose the race with Shutdown and never start
		if errors.Is(err, ErrServerStopped) {
			return nil
		}
		return err
	case <-time.After(timeout):
		return nil
	}
}
