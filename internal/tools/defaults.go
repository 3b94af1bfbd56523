package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashita-ai/mado/internal/bridge"
	"github.com/ashita-ai/mado/internal/host"
	"github.com/ashita-ai/mado/internal/logpath"
	"github.com/ashita-ai/mado/internal/tail"
)

// Default tool names.
const (
	ToolGetLogs    = "host_logs/get_logs"
	ToolGetLogPath = "host_logs/get_log_path"
	ToolExec       = "host_logs/exec"
)

// maxSearchedInMiss bounds the search trail returned when no log is found.
const maxSearchedInMiss = 20

// LogResolver is the subset of logpath.Resolver the log tools use.
type LogResolver interface {
	Resolve(explicit string, useCache bool) logpath.Resolved
	ProjectName() string
}

// Submitter runs a thunk on the host's execution thread.
type Submitter interface {
	Submit(ctx context.Context, thunk bridge.Thunk) (any, error)
}

// Deps are the collaborators behind the default tools.
type Deps struct {
	Host        host.Host // diagnostic sink; may be nil
	Resolver    LogResolver
	Reader      tail.Reader
	Bridge      Submitter
	Interpreter host.Interpreter // nil disables code execution

	DefaultLines int
	MaxLines     int

	// Names of the environment variables reported by get_log_path.
	OverrideEnv string
	PortEnv     string
}

// Defaults returns the get_logs, get_log_path and exec tools.
func Defaults(d Deps) []Tool {
	return []Tool{getLogsTool(d), getLogPathTool(d), execTool(d)}
}

type getLogsParams struct {
	Limit int
	Path  string
}

func getLogsTool(d Deps) Tool {
	return NewTool(ToolGetLogs,
		fmt.Sprintf("Retrieves the most recent host log entries from the resolved log file. Default limit is %d lines.", d.DefaultLines),
		[]Field{
			IntegerField("limit", fmt.Sprintf("The maximum number of log lines to return (default %d, max %d).", d.DefaultLines, d.MaxLines)),
			StringField("path", "Optional absolute path to a specific .log file (overrides auto-detection for this call).", false),
		},
		func(a Args) (getLogsParams, error) {
			p := getLogsParams{Limit: d.DefaultLines}
			if n, ok := a.Int("limit"); ok {
				p.Limit = n
			}
			p.Limit = max(1, min(p.Limit, d.MaxLines))
			path, _, err := a.String("path")
			p.Path = path
			return p, err
		},
		func(_ context.Context, p getLogsParams) (any, error) {
			res := d.Resolver.Resolve(p.Path, true)
			if !res.Found() {
				searched := res.Searched
				if len(searched) > maxSearchedInMiss {
					searched = searched[len(searched)-maxSearchedInMiss:]
				}
				return append([]string{"ERROR: Could not resolve host log file.", "Searched:"}, searched...), nil
			}
			r := d.Reader.Tail(res.Path, p.Limit)
			if r.Fault != nil {
				host.SafeError(d.Host, fmt.Sprintf("Error reading log file %s: %v", res.Path, r.Fault))
			}
			return r.Output(), nil
		},
	)
}

// LogPathInfo is the get_log_path result.
type LogPathInfo struct {
	Project  string   `json:"project"`
	Resolved *string  `json:"resolved"`
	Searched []string `json:"searched"`
	Hint     LogHint  `json:"hint"`
}

// LogHint names the environment variables that steer resolution.
type LogHint struct {
	OverrideEnv string `json:"override_env"`
	PortEnv     string `json:"port_env"`
}

type getLogPathParams struct {
	Path string
}

func getLogPathTool(d Deps) Tool {
	return NewTool(ToolGetLogPath,
		"Returns the resolved host log file path plus search locations. Supports optional path override.",
		[]Field{
			StringField("path", "Optional absolute path to test as the log file path.", false),
		},
		func(a Args) (getLogPathParams, error) {
			path, _, err := a.String("path")
			return getLogPathParams{Path: path}, err
		},
		func(_ context.Context, p getLogPathParams) (any, error) {
			res := d.Resolver.Resolve(p.Path, p.Path == "")
			info := LogPathInfo{
				Project:  d.Resolver.ProjectName(),
				Searched: res.Searched,
				Hint:     LogHint{OverrideEnv: d.OverrideEnv, PortEnv: d.PortEnv},
			}
			if info.Searched == nil {
				info.Searched = []string{}
			}
			if res.Found() {
				info.Resolved = &res.Path
			}
			return info, nil
		},
	)
}

// Exec statuses.
const (
	ExecOK          = "ok"
	ExecError       = "error"
	ExecUnavailable = "unavailable"
	ExecTimeout     = "timeout"
)

// ExecResult is the exec tool's result. Failures are reported in-band so
// the caller always sees whatever output was captured.
type ExecResult struct {
	OK        bool   `json:"ok"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

type execParams struct {
	Code string
	Mode host.Mode
}

func execTool(d Deps) Tool {
	return NewTool(ToolExec,
		"Execute code inside the running host process on its main thread. Returns stdout/stderr/result.",
		[]Field{
			StringField("code", "Source code to execute.", true),
			StringField("mode", "Execution mode: 'exec' (default) or 'eval'.", false, string(host.ModeExec), string(host.ModeEval)),
		},
		func(a Args) (execParams, error) {
			code, _, err := a.String("code")
			if err != nil {
				return execParams{}, err
			}
			mode, _, err := a.String("mode")
			if err != nil {
				return execParams{}, err
			}
			return execParams{Code: code, Mode: host.ParseMode(mode)}, nil
		},
		func(ctx context.Context, p execParams) (any, error) {
			return runExec(ctx, d, p), nil
		},
	)
}

func runExec(ctx context.Context, d Deps, p execParams) ExecResult {
	res := ExecResult{Mode: string(p.Mode)}
	if d.Interpreter == nil || d.Bridge == nil {
		res.Status = ExecUnavailable
		res.Error = host.ErrNoInterpreter.Error()
		return res
	}

	req := host.ExecRequest{Code: p.Code, Mode: p.Mode}
	v, err := d.Bridge.Submit(ctx, func() (any, error) {
		out, err := d.Interpreter.Execute(req)
		return out, err
	})
	if out, ok := v.(host.ExecOutput); ok {
		res.Stdout, res.Stderr, res.Result = out.Stdout, out.Stderr, out.Result
	}

	var fault *bridge.Fault
	switch {
	case err == nil:
		res.OK = true
		res.Status = ExecOK
	case errors.Is(err, bridge.ErrUnavailable), errors.Is(err, bridge.ErrStopped), errors.Is(err, host.ErrNoInterpreter):
		res.Status = ExecUnavailable
		res.Error = err.Error()
	case errors.Is(err, bridge.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		res.Status = ExecTimeout
		res.Error = err.Error()
	case errors.As(err, &fault):
		res.Status = ExecError
		res.Error = fault.Error()
		res.Traceback = fault.Stack
	default:
		res.Status = ExecError
		res.Error = err.Error()
	}
	return res
}
