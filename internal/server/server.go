// Package server exposes the API directory over HTTP and a chat WebSocket.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/pkg/explorer"
)

// Server is the HTTP surface of an explorer session.
type Server struct {
	explorer   *explorer.Explorer
	config     explorer.ServerConfig
	log        *logger.Logger
	metrics    *metrics.Collector
	registry   *prometheus.Registry
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu       sync.RWMutex
	ready    bool
	listener net.Listener
}

// New creates a server for e using the server section of its configuration.
func New(e *explorer.Explorer) *Server {
	cfg := e.Config().Server

	s := &Server{
		explorer: e,
		config:   cfg,
		log:      e.Logger().WithComponent("server"),
		metrics:  e.Metrics(),
		registry: prometheus.NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin checks belong to the frontend proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registry.MustRegister(s.metrics)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(routeMiddleware(s.setupRoutes()))
}

// SetReady marks the server as ready to serve traffic
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Ready reports whether the server accepts traffic.
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Addr returns the bound address once Start is listening, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Start listens and serves until ctx is cancelled or the server fails.
// Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.ready = true
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("Server listening")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(shutdownCtx)
}
