package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/mado/internal/tools"
)

func (s *Server) registerPrompts() {
	// triage-host-log: walk an agent through reading the host log for a symptom.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("triage-host-log",
			mcplib.WithPromptDescription("Investigate a problem in the running host using its diagnostic log"),
			mcplib.WithArgument("symptom",
				mcplib.ArgumentDescription("What went wrong, e.g. 'asset import failed' or 'editor froze on save'"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleTriagePrompt,
	)
}

func (s *Server) handleTriagePrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	symptom := strings.TrimSpace(request.Params.Arguments["symptom"])
	if symptom == "" {
		return nil, fmt.Errorf("symptom argument is required")
	}

	getPath := ToolName(tools.ToolGetLogPath)
	getLogs := ToolName(tools.ToolGetLogs)

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Triage the host log for: %s", symptom),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Investigate this problem in the running host: %s

1. CALL %s to confirm which log file is being read. If "resolved" is null,
   report the "searched" locations and stop; the host may not have started logging yet.

2. CALL %s with limit=500. Look for Error and Warning lines near the end of the log
   that relate to the problem. Increase the limit if the relevant lines are cut off.

3. SUMMARIZE the likely cause, quoting the log lines that support it.
   Do not run code in the host unless the user asks for it.`, symptom, getPath, getLogs),
				},
			},
		},
	}, nil
}
