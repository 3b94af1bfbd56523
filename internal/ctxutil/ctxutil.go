// Package ctxutil provides shared context key accessors.
//
// The HTTP server stamps each request with an ID; the tool dispatcher and
// the MCP adapter read it back for logging and the invocation audit without
// importing the server package.
package ctxutil

import "context"

type contextKey string

const keyRequestID contextKey = "request_id"

// WithRequestID returns a new context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
