package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/mado/internal/tools"
)

func (s *Server) registerTools() {
	for _, t := range s.registry.Tools() {
		name := ToolName(t.Name())
		s.names[name] = t.Name()
		s.mcpServer.AddTool(toMCPTool(name, t), s.handleTool)
	}
}

func toMCPTool(name string, t tools.Tool) mcplib.Tool {
	opts := []mcplib.ToolOption{mcplib.WithDescription(t.Description())}
	if t.Name() == tools.ToolExec {
		opts = append(opts,
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
		)
	} else {
		opts = append(opts,
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		)
	}

	for _, f := range t.Fields() {
		props := []mcplib.PropertyOption{mcplib.Description(f.Description)}
		if f.Required {
			props = append(props, mcplib.Required())
		}
		if len(f.Enum) > 0 {
			props = append(props, mcplib.Enum(f.Enum...))
		}
		switch f.Type {
		case "integer", "number":
			opts = append(opts, mcplib.WithNumber(f.Name, props...))
		case "boolean":
			opts = append(opts, mcplib.WithBoolean(f.Name, props...))
		default:
			opts = append(opts, mcplib.WithString(f.Name, props...))
		}
	}
	return mcplib.NewTool(name, opts...)
}

func (s *Server) handleTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, ok := s.names[request.Params.Name]
	if !ok {
		return errorResult(fmt.Sprintf("%v: %s", tools.ErrUnknownTool, request.Params.Name)), nil
	}

	out := s.invoker.Invoke(ctx, Transport, tools.Call{Tool: name, Arguments: request.GetArguments()})
	if !out.OK() {
		return errorResult(out.Err.Error()), nil
	}

	data, err := json.MarshalIndent(out.Result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return textResult(string(data)), nil
}
