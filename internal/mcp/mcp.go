// Package mcp exposes the tool registry over the Model Context Protocol.
//
// Every registered tool becomes an MCP tool backed by the same dispatch
// path as the HTTP envelope, so argument filtering, validation and the
// invocation audit behave identically on both transports. Log state is also
// published as MCP resources.
package mcp

import (
	"context"
	"log/slog"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/mado/internal/tools"
)

// Transport labels MCP invocations in the audit trail.
const Transport = "mcp"

// Invoker runs one tool call.
type Invoker interface {
	Invoke(ctx context.Context, transport string, call tools.Call) tools.Outcome
}

// Server wraps the mcp-go server.
type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  *tools.Registry
	invoker   Invoker
	logger    *slog.Logger

	// MCP tool name -> registry name.
	names map[string]string
}

// New creates an MCP server publishing every tool in registry.
func New(registry *tools.Registry, invoker Invoker, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		invoker:  invoker,
		logger:   logger,
		names:    make(map[string]string),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"mado",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithInstructions("mado exposes the host application's diagnostic log and, when enabled, code execution on its main thread. "+
			"Call host_logs_get_log_path to see which log file is in use, host_logs_get_logs to read recent lines."),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ToolName maps a registry name to a valid MCP tool name.
func ToolName(name string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(name)
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
