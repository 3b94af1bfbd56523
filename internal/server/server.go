// Package server implements the HTTP tool envelope for mado.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/mado/internal/storage"
	"github.com/ashita-ai/mado/internal/tools"
)

// Transport labels HTTP envelope invocations in the audit trail.
const Transport = "http"

// Invoker runs one tool call on behalf of a transport.
type Invoker interface {
	Invoke(ctx context.Context, transport string, call tools.Call) tools.Outcome
}

// BridgeStatus reports the execution bridge's state for /health.
type BridgeStatus interface {
	Ready() bool
	Pending() int
}

// AuditLog serves the invocation history.
type AuditLog interface {
	Ping(ctx context.Context) error
	RecentInvocations(ctx context.Context, limit int) ([]storage.Invocation, error)
	GetInvocation(ctx context.Context, id uuid.UUID) (storage.Invocation, error)
}

// Server is the mado HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Notes, Bridge, Audit, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	Registry *tools.Registry
	Invoker  Invoker
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Notes     func() map[string]string // live description annotations for discovery
	Bridge    BridgeStatus
	Audit     AuditLog
	MCPServer *mcpserver.MCPServer

	// Routes.
	DiscoveryPath string
	InvokePath    string
	MCPPath       string

	// HTTP server settings.
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	Tracing             bool
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{
		registry:     cfg.Registry,
		invoker:      cfg.Invoker,
		notes:        cfg.Notes,
		bridge:       cfg.Bridge,
		audit:        cfg.Audit,
		logger:       cfg.Logger,
		version:      cfg.Version,
		maxBodyBytes: cfg.MaxRequestBodyBytes,
		startedAt:    time.Now(),
	}

	mux := http.NewServeMux()

	// Tool envelope.
	mux.HandleFunc("GET "+cfg.DiscoveryPath, h.handleDiscovery)
	mux.HandleFunc("POST "+cfg.InvokePath, h.handleInvoke)

	// MCP StreamableHTTP transport over the same registry.
	if cfg.MCPServer != nil && cfg.MCPPath != "" {
		mux.Handle(cfg.MCPPath, mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /invocations", h.handleRecentInvocations)
	mux.HandleFunc("GET /invocations/{id}", h.handleGetInvocation)

	// Everything else, including a known path with the wrong method.
	mux.HandleFunc("/", h.handleNotFound)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(cfg.Tracing, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			ErrorLog:     slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Serve accepts connections on ln until Shutdown. Each connection is served
// on its own goroutine. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
