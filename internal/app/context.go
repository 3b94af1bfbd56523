// Package app assembles mado's components and owns their lifetime.
//
// A Context holds the one log resolver, execution bridge and tool registry
// for a running host. A Lifecycle builds a fresh Context on every start and
// tears the previous one down, so reloading in place never leaks a listener
// or a tick callback.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashita-ai/mado/internal/bridge"
	"github.com/ashita-ai/mado/internal/config"
	"github.com/ashita-ai/mado/internal/ctxutil"
	"github.com/ashita-ai/mado/internal/host"
	"github.com/ashita-ai/mado/internal/logpath"
	"github.com/ashita-ai/mado/internal/mcp"
	"github.com/ashita-ai/mado/internal/storage"
	"github.com/ashita-ai/mado/internal/tail"
	"github.com/ashita-ai/mado/internal/tools"
)

// Environment variable names reported in get_log_path hints.
const (
	EnvLogPath = "MADO_LOG_PATH"
	EnvPort    = "MADO_PORT"
)

// Context is the owning object for one generation of mado's state.
type Context struct {
	Config   config.Config
	Host     host.Host
	Resolver *logpath.Resolver
	Bridge   *bridge.Bridge
	Registry *tools.Registry
	Audit    *storage.DB // nil when auditing is disabled
	MCP      *mcp.Server // nil when MCP is disabled

	logger *slog.Logger
}

// Deps are the long-lived collaborators shared by every Context generation.
type Deps struct {
	Host        host.Host
	Interpreter host.Interpreter // nil disables exec
	Audit       *storage.DB
	Logger      *slog.Logger
	Version     string
}

// NewContext builds the resolver, bridge, default tools and MCP adapter for
// cfg. The bridge is created but not yet registered with the host.
func NewContext(cfg config.Config, d Deps) (*Context, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Context{
		Config: cfg,
		Host:   d.Host,
		Resolver: logpath.New(d.Host, logpath.Config{
			Override:      cfg.LogPath,
			ProjectName:   cfg.ProjectName,
			FallbackBase:  cfg.FallbackLogBase,
			EngineDirName: cfg.EngineDirName,
		}),
		Bridge: bridge.New(d.Host, logger, cfg.ExecTimeout),
		Audit:  d.Audit,
		logger: logger,
	}

	reg, err := tools.NewRegistry(tools.Defaults(tools.Deps{
		Host:         d.Host,
		Resolver:     c.Resolver,
		Reader:       tail.Reader{},
		Bridge:       c.Bridge,
		Interpreter:  d.Interpreter,
		DefaultLines: cfg.LogLinesDefault,
		MaxLines:     cfg.LogLinesMax,
		OverrideEnv:  EnvLogPath,
		PortEnv:      EnvPort,
	})...)
	if err != nil {
		return nil, fmt.Errorf("app: build registry: %w", err)
	}
	c.Registry = reg

	if cfg.MCPEnabled {
		c.MCP = mcp.New(reg, c, logger, d.Version)
	}
	return c, nil
}

// Invoke dispatches call and records it in the audit trail when enabled.
// It satisfies both the HTTP and MCP transports.
func (c *Context) Invoke(ctx context.Context, transport string, call tools.Call) tools.Outcome {
	out := c.Registry.Dispatch(ctx, call)
	reqID := ctxutil.RequestIDFromContext(ctx)

	c.logger.Debug("tool invoked",
		"tool", call.Tool,
		"transport", transport,
		"status", string(out.Status),
		"duration_ms", out.Duration.Milliseconds(),
		"request_id", reqID,
	)

	if c.Audit != nil {
		inv := storage.Invocation{
			RequestID: reqID,
			Transport: transport,
			Tool:      call.Tool,
			Status:    string(out.Status),
			Duration:  out.Duration,
		}
		if out.Err != nil {
			inv.Error = out.Err.Error()
		}
		if _, err := c.Audit.InsertInvocation(context.WithoutCancel(ctx), inv); err != nil {
			c.logger.Warn("audit insert failed", "error", err, "tool", call.Tool)
		}
	}
	return out
}

// Notes annotates get_logs in discovery with the path it would read now.
func (c *Context) Notes() map[string]string {
	res := c.Resolver.Resolve("", true)
	if !res.Found() {
		return nil
	}
	return map[string]string{tools.ToolGetLogs: "current: " + res.Path}
}
