package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/mado/internal/tools"
)

// recordingInvoker dispatches through a real registry and remembers calls.
type recordingInvoker struct {
	registry   *tools.Registry
	transports []string
	calls      []tools.Call
}

func (r *recordingInvoker) Invoke(ctx context.Context, transport string, call tools.Call) tools.Outcome {
	r.transports = append(r.transports, transport)
	r.calls = append(r.calls, call)
	return r.registry.Dispatch(ctx, call)
}

type linesParams struct{ Limit int }

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	getLogs := tools.NewTool(tools.ToolGetLogs, "Recent lines.",
		[]tools.Field{tools.IntegerField("limit", "Line count.")},
		func(a tools.Args) (linesParams, error) {
			n, ok := a.Int("limit")
			if !ok {
				n = 2
			}
			return linesParams{Limit: n}, nil
		},
		func(_ context.Context, p linesParams) (any, error) {
			all := []string{"L1", "L2", "L3", "L4"}
			return all[len(all)-min(p.Limit, len(all)):], nil
		},
	)
	getPath := tools.NewTool(tools.ToolGetLogPath, "Where the log is.", nil,
		func(tools.Args) (struct{}, error) { return struct{}{}, nil },
		func(context.Context, struct{}) (any, error) {
			return map[string]any{"resolved": "/saved/Logs/Game.log"}, nil
		},
	)
	exec := tools.NewTool(tools.ToolExec, "Run code.",
		[]tools.Field{
			tools.StringField("code", "Source.", true),
			tools.StringField("mode", "Mode.", false, "exec", "eval"),
		},
		func(a tools.Args) (string, error) {
			code, _, err := a.String("code")
			return code, err
		},
		func(_ context.Context, code string) (any, error) { return map[string]any{"ran": code}, nil },
	)
	r, err := tools.NewRegistry(getLogs, getPath, exec)
	require.NoError(t, err)
	return r
}

func newTestServer(t *testing.T) (*Server, *recordingInvoker) {
	t.Helper()
	reg := testRegistry(t)
	inv := &recordingInvoker{registry: reg}
	return New(reg, inv, nil, "test"), inv
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "host_logs_get_logs", ToolName(tools.ToolGetLogs))
	assert.Equal(t, "plain", ToolName("plain"))
}

func TestRegisteredToolsMirrorRegistry(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, map[string]string{
		"host_logs_get_logs":     tools.ToolGetLogs,
		"host_logs_get_log_path": tools.ToolGetLogPath,
		"host_logs_exec":         tools.ToolExec,
	}, s.names)
}

func TestToMCPTool_Schema(t *testing.T) {
	reg := testRegistry(t)
	execTool, ok := reg.Lookup(tools.ToolExec)
	require.True(t, ok)

	mt := toMCPTool("host_logs_exec", execTool)
	assert.Equal(t, "host_logs_exec", mt.Name)
	assert.Equal(t, "Run code.", mt.Description)
	assert.Equal(t, []string{"code"}, mt.InputSchema.Required)
	assert.Contains(t, mt.InputSchema.Properties, "code")
	assert.Contains(t, mt.InputSchema.Properties, "mode")
}

func TestHandleTool_DispatchesThroughInvoker(t *testing.T) {
	s, inv := newTestServer(t)

	result, err := s.handleTool(context.Background(), toolRequest("host_logs_get_logs", map[string]any{
		"limit":   float64(3),
		"ignored": "x",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var lines []string
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &lines))
	assert.Equal(t, []string{"L2", "L3", "L4"}, lines)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, Transport, inv.transports[0])
	assert.Equal(t, tools.ToolGetLogs, inv.calls[0].Tool, "MCP names map back to registry names")
}

func TestHandleTool_InvalidArgumentsIsErrorResult(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleTool(context.Background(), toolRequest("host_logs_exec", map[string]any{"mode": "eval"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "missing required argument: code")
}

func TestHandleTool_UnknownName(t *testing.T) {
	s, inv := newTestServer(t)

	result, err := s.handleTool(context.Background(), toolRequest("host_logs/get_logs", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, inv.calls, "unmapped names never reach the dispatcher")
}
