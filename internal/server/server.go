package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cortexdb/cortexdb/internal/config"
	"github.com/cortexdb/cortexdb/internal/observability"
)

// Server owns the HTTP listener and its graceful shutdown.
type Server struct {
	httpServer      *http.Server
	listener        net.Listener
	logger          *observability.Logger
	shutdownTimeout time.Duration
	errCh           chan error
}

// NewServer builds the server around an already-mounted handler. A nil
// logger discards output.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Output: io.Discard})
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		errCh:           make(chan error, 1),
	}
}

// Start binds the listener and serves in the background. A bind failure is
// returned immediately; serve errors after that surface on Err.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "http server error", "error", err)
			s.errCh <- err
		}
	}()

	s.logger.Info(ctx, "http server listening", "addr", listener.Addr().String())
	return nil
}

// Err reports a fatal serve error. The channel never closes; a graceful
// shutdown produces nothing on it.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Shutdown drains in-flight requests inside the configured window.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr reports the bound address, useful when the config asked for port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}
