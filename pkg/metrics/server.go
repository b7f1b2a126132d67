package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"
	// DefaultMetricsPath is the default path for the metrics endpoint.
	DefaultMetricsPath = "/metrics"
	// DefaultHealthPath is the default path for the health endpoint.
	DefaultHealthPath = "/health"
)

// Server is an HTTP server that exposes Prometheus metrics and health.
type Server struct {
	mu       sync.RWMutex
	server   *http.Server
	metrics  *Metrics
	health   *HealthChecker
	logger   *zap.Logger
	running  bool
	addr     string
	listener net.Listener
}

// ServerOption is a function that configures a Server.
type ServerOption func(*Server)

// WithHealthChecker sets the health checker for the server.
func WithHealthChecker(h *HealthChecker) ServerOption {
	return func(s *Server) {
		s.health = h
	}
}

// WithAddr sets the address for the server.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger for serve errors.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new metrics server for m.
func NewServer(m *Metrics, opts ...ServerOption) *Server {
	s := &Server{
		metrics: m,
		addr:    DefaultMetricsAddr,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(DefaultMetricsPath, s.metrics.Handler())
	mux.HandleFunc(DefaultHealthPath, s.handleHealth)
	return mux
}

// Start starts the metrics server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.running = true
	server := s.server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the metrics server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.server
	s.running = false
	s.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// handleHealth handles the /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	status := &HealthStatus{Healthy: true, Timestamp: time.Now().UTC()}
	if s.health != nil {
		status = s.health.Check(r.Context())
	}
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
