package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devwraithe/simple-faucet-token/pkg/metrics"
	"github.com/devwraithe/simple-faucet-token/pkg/runtime"
)

// ServerConfig holds configuration for the RPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8899" or "127.0.0.1:8899")
	Address string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// MaxRequestSize is the maximum size of a request body in bytes.
	MaxRequestSize int64

	// AllowedOrigins for CORS (empty means allow all).
	AllowedOrigins []string

	// EnableRateLimit enables per-IP request rate limiting.
	EnableRateLimit bool

	// RateLimitRPS is the requests per second limit per IP.
	RateLimitRPS float64

	// RateLimitBurst is the burst capacity for rate limiting.
	RateLimitBurst int

	// AirdropRate is the requestAirdrop calls per second allowed per
	// requester. Zero disables airdrop limiting.
	AirdropRate float64

	// AirdropBurst is the per-requester airdrop burst.
	AirdropBurst int

	// Logger for request logging (nil disables logging).
	Logger *zap.Logger

	// Metrics records RPC requests (nil disables metrics).
	Metrics *metrics.Metrics

	// Health backs getHealth (nil always reports ok).
	Health *metrics.HealthChecker
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8899",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxRequestSize:  1024 * 1024, // 1MB
		AllowedOrigins:  []string{"*"},
		EnableRateLimit: false,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		AirdropRate:     1,
		AirdropBurst:    1,
	}
}

// Server is a JSON-RPC 2.0 server for the faucet node.
type Server struct {
	config   *ServerConfig
	handlers *Handlers
	logger   *zap.Logger
	server   *http.Server
	listener net.Listener
	mu       sync.RWMutex
	running  bool
}

// NewServer creates a new RPC server serving the faucet described by info.
func NewServer(config *ServerConfig, executor *runtime.Executor, info FaucetInfo) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handlers := NewHandlers(executor, info)
	handlers.SetLogger(logger)
	handlers.SetMetrics(config.Metrics)
	handlers.SetHealthChecker(config.Health)
	handlers.SetAirdropLimit(config.AirdropRate, config.AirdropBurst)

	return &Server{
		config:   config,
		handlers: handlers,
		logger:   logger,
	}
}

// Handlers returns the handlers instance.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	middlewares := []Middleware{
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		ContentTypeMiddleware(),
		CORSMiddleware(s.config.AllowedOrigins),
	}

	if s.config.EnableRateLimit {
		middlewares = append(middlewares, RateLimitMiddleware(s.config.RateLimitRPS, s.config.RateLimitBurst))
	}

	mux := http.NewServeMux()
	mux.Handle("/", Chain(http.HandlerFunc(s.handleRequest), middlewares...))
	return mux
}

// Start listens on the configured address and serves until ctx is
// cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.running = true
	server := s.server
	s.mu.Unlock()

	s.logger.Info("rpc server listening", zap.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully stops the RPC server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}

	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// handleRequest processes incoming JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, nil, NewRPCError(InvalidRequest, "only POST method is allowed"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, nil, NewRPCError(ParseError, "failed to read request body"))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.handleBatchRequest(r.Context(), w, body)
		return
	}

	s.writeResponse(w, s.processRequest(r.Context(), body))
}

// handleBatchRequest processes a batch of JSON-RPC requests.
func (s *Server) handleBatchRequest(ctx context.Context, w http.ResponseWriter, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		s.writeError(w, nil, NewRPCError(ParseError, "invalid JSON"))
		return
	}

	if len(requests) == 0 {
		s.writeError(w, nil, NewRPCError(InvalidRequest, "empty batch"))
		return
	}

	responses := make([]RPCResponse, 0, len(requests))
	for _, reqBody := range requests {
		response := s.processRequest(ctx, reqBody)
		// Notifications (no ID) get no response.
		if response.ID != nil {
			responses = append(responses, response)
		}
	}

	s.writeJSON(w, responses)
}

// processRequest processes a single JSON-RPC request.
func (s *Server) processRequest(ctx context.Context, body []byte) RPCResponse {
	var request RPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		s.config.Metrics.IncRPCRequest("invalid", metrics.ResultError)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(ParseError, "invalid JSON"),
			ID:      nil,
		}
	}

	if request.JSONRPC != JSONRPCVersion {
		s.config.Metrics.IncRPCRequest("invalid", metrics.ResultError)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(InvalidRequest, "invalid jsonrpc version"),
			ID:      request.ID,
		}
	}

	handler := s.handlers.GetHandler(request.Method)
	if handler == nil {
		s.config.Metrics.IncRPCRequest("unknown", metrics.ResultError)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", request.Method)),
			ID:      request.ID,
		}
	}

	result, rpcErr := handler(ctx, request.Params)
	if rpcErr != nil {
		s.config.Metrics.IncRPCRequest(request.Method, metrics.ResultError)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   rpcErr,
			ID:      request.ID,
		}
	}

	s.config.Metrics.IncRPCRequest(request.Method, metrics.ResultSuccess)
	return RPCResponse{
		JSONRPC: JSONRPCVersion,
		Result:  result,
		ID:      request.ID,
	}
}

// writeResponse writes a JSON-RPC response.
func (s *Server) writeResponse(w http.ResponseWriter, response RPCResponse) {
	s.writeJSON(w, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

// writeError writes a JSON-RPC error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	s.writeResponse(w, RPCResponse{
		JSONRPC: JSONRPCVersion,
		Error:   rpcErr,
		ID:      id,
	})
}
