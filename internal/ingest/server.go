// Package ingest runs the local HTTP endpoint that lets a connected device
// trigger editor actions.
package ingest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devlink-io/devlink/internal/logger"
)

// ExecEvent is one inbound /exec call, republished for dispatch.
type ExecEvent struct {
	Cmd  string
	Path string
}

// Server is the long-lived command ingest listener. It binds the wildcard
// interface on a fixed, well-known port so same-host devices (and forwarded
// ADB sockets) can reach it.
type Server struct {
	port       int
	httpServer *http.Server
	running    atomic.Bool

	mu      sync.Mutex
	onReady func(port int)
	onError func(err error)
	onExec  func(ev ExecEvent)

	cancel context.CancelFunc
}

// NewServer creates a server for the given port.
func NewServer(port int) *Server {
	return &Server{port: port}
}

// OnReady sets the callback invoked once the listener is bound.
func (s *Server) OnReady(fn func(port int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = fn
}

// OnError sets the callback invoked on listener-level failure.
func (s *Server) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// OnExec sets the callback receiving published (cmd, path) events.
func (s *Server) OnExec(fn func(ev ExecEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExec = fn
}

// Start binds the listener and serves in the background. The ready event
// fires after a successful bind; a bind failure fires the error event and is
// also returned.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("ingest server already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	mux := http.NewServeMux()
	mux.HandleFunc("/exec", s.handleExec)
	mux.HandleFunc("/", s.handleNotFound)

	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		cancel()
		s.emitError(fmt.Errorf("failed to listen on %s: %w", addr, err))
		return err
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	boundPort := listener.Addr().(*net.TCPAddr).Port
	logger.Component("ingest").Info().Int("port", boundPort).Msg("command ingest listening")
	s.emitReady(boundPort)

	go func() {
		err := s.httpServer.Serve(listener)
		if err == http.ErrServerClosed || ctx.Err() != nil {
			return
		}
		s.running.Store(false)
		s.emitError(err)
	}()

	return nil
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleExec answers with a short echo, then publishes the event
// asynchronously so a slow dispatch never holds the response.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmd := q.Get("cmd")
	path := q.Get("path")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "devlink received command %q for %q\n", cmd, path)

	go s.emitExec(ExecEvent{Cmd: cmd, Path: path})
}

// handleNotFound answers every other path with an empty 404 body and
// publishes nothing.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) emitReady(port int) {
	s.mu.Lock()
	fn := s.onReady
	s.mu.Unlock()
	if fn != nil {
		fn(port)
	}
}

func (s *Server) emitError(err error) {
	logger.Component("ingest").Error().Err(err).Msg("ingest server failed")
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *Server) emitExec(ev ExecEvent) {
	s.mu.Lock()
	fn := s.onExec
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
