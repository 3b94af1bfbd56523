package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriagePrompt(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleTriagePrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "triage-host-log",
			Arguments: map[string]string{"symptom": "shader compile hang"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.Description, "shader compile hang")
	require.NotEmpty(t, result.Messages)

	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)
	tc, ok := msg.Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	assert.Contains(t, tc.Text, "host_logs_get_log_path")
	assert.Contains(t, tc.Text, "host_logs_get_logs")
}

func TestTriagePrompt_MissingSymptom(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleTriagePrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "triage-host-log",
			Arguments: map[string]string{"symptom": "   "},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symptom")
}
