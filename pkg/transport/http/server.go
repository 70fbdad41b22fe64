package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/knikam3027/jnj/pkg/transport"
)

// ServerConfig sizes the listener and the adapter behind it.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Adapter         Config
}

// DefaultServerConfig listens on :8506. The write timeout leaves room for a
// slow answer engine behind the gateway calls.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8506",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    180 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Adapter:         DefaultConfig(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.cfg.Addr = addr }
}

// WithTimeouts sets the read and write timeouts.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) { s.cfg.ReadTimeout, s.cfg.WriteTimeout = read, write }
}

// WithShutdownTimeout bounds how long in-flight invocations may drain.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.cfg.ShutdownTimeout = d }
}

// WithAdapterConfig replaces the adapter settings.
func WithAdapterConfig(cfg Config) ServerOption {
	return func(s *Server) { s.cfg.Adapter = cfg }
}

// WithLogger sets the logger used for lifecycle and access logs.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server serves the askgs HTTP surface until its context ends.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds the HTTP server for invoker. Every invocation passes
// through panic recovery, request ID assignment and access logging, in
// that order. health backs GET /readyz and may be nil.
func NewServer(invoker transport.Invoker, health transport.HealthChecker, opts ...ServerOption) *Server {
	s := &Server{cfg: DefaultServerConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	adapter := NewAdapter(invoker, health, s.cfg.Adapter,
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           adapter.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the complete handler, middleware included.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then drains in-flight requests
// for at most the shutdown timeout. It returns nil after a clean drain.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("askgs listening", slog.String("addr", ln.Addr().String()))

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("draining in-flight requests", slog.Duration("timeout", s.cfg.ShutdownTimeout))
	if err := s.srv.Shutdown(drainCtx); err != nil {
		s.logger.Error("shutdown incomplete", slog.String("error", err.Error()))
		return err
	}
	<-served
	s.logger.Info("askgs stopped")
	return nil
}
