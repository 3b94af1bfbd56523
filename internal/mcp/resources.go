package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/mado/internal/tools"
)

const (
	uriLogPath    = "mado://logs/path"
	uriLogTailFmt = "mado://logs/tail/{lines}"
	tailURIPrefix = "mado://logs/tail/"
)

func (s *Server) registerResources() {
	if _, ok := s.registry.Lookup(tools.ToolGetLogPath); ok {
		// mado://logs/path: the resolved log file and every location searched.
		s.mcpServer.AddResource(
			mcplib.NewResource(uriLogPath, "Host Log Path",
				mcplib.WithResourceDescription("The resolved host log file plus the locations searched"),
				mcplib.WithMIMEType("application/json"),
			),
			s.handleLogPath,
		)
	}

	if _, ok := s.registry.Lookup(tools.ToolGetLogs); ok {
		// mado://logs/tail/{lines}: the last N lines of the host log.
		s.mcpServer.AddResourceTemplate(
			mcplib.NewResourceTemplate(uriLogTailFmt, "Host Log Tail",
				mcplib.WithTemplateDescription("The most recent lines of the host log file"),
				mcplib.WithTemplateMIMEType("text/plain"),
			),
			s.handleLogTail,
		)
	}
}

func (s *Server) handleLogPath(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	out := s.invoker.Invoke(ctx, Transport, tools.Call{Tool: tools.ToolGetLogPath})
	if !out.OK() {
		return nil, fmt.Errorf("mcp: log path: %w", out.Err)
	}
	data, err := json.MarshalIndent(out.Result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal log path: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uriLogPath,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleLogTail(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	lines, err := parseTailURI(uri)
	if err != nil {
		return nil, err
	}

	out := s.invoker.Invoke(ctx, Transport, tools.Call{
		Tool:      tools.ToolGetLogs,
		Arguments: map[string]any{"limit": lines},
	})
	if !out.OK() {
		return nil, fmt.Errorf("mcp: log tail: %w", out.Err)
	}
	got, ok := out.Result.([]string)
	if !ok {
		return nil, fmt.Errorf("mcp: log tail: unexpected result %T", out.Result)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     strings.Join(got, "\n"),
		},
	}, nil
}

// parseTailURI extracts the line count from mado://logs/tail/{lines}.
func parseTailURI(uri string) (int, error) {
	rest, ok := strings.CutPrefix(uri, tailURIPrefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return 0, fmt.Errorf("mcp: invalid log tail URI: %s", uri)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("mcp: log tail line count must be a positive integer: %s", uri)
	}
	return n, nil
}
