// Package host defines the boundary between mado and the long-running
// application whose diagnostic output and main thread it exposes.
//
// A Host always provides identity and diagnostic sinks. Scheduling and code
// execution are optional capabilities discovered by type assertion
// (PostTicker, PreTicker, Interpreter), so a host that lacks them degrades to
// a log-only control plane instead of failing to start.
package host

import (
	"errors"
	"time"
)

// TickFunc is invoked on the host's designated execution thread once per
// frame with the time elapsed since the previous frame.
type TickFunc func(delta time.Duration)

// TickHandle identifies a registered tick callback.
type TickHandle uint64

// Host is the minimal surface every host application provides.
type Host interface {
	// ProjectName returns the host's project/application name, or "" when
	// the host cannot report one.
	ProjectName() string
	// SavedDir returns the host's saved/output directory, or "" when absent.
	SavedDir() string
	// LogInfo and LogError write to the host's own diagnostic sinks.
	LogInfo(msg string)
	LogError(msg string)
}

// PostTicker registers callbacks that run after each host frame.
type PostTicker interface {
	RegisterPostTick(fn TickFunc) (TickHandle, error)
	UnregisterPostTick(h TickHandle)
}

// PreTicker registers callbacks that run before each host frame.
type PreTicker interface {
	RegisterPreTick(fn TickFunc) (TickHandle, error)
	UnregisterPreTick(h TickHandle)
}

// Mode selects how an Interpreter treats submitted code.
type Mode string

const (
	ModeExec Mode = "exec"
	ModeEval Mode = "eval"
)

// ParseMode maps a wire value to a Mode. Anything but "eval" is exec.
func ParseMode(s string) Mode {
	if s == string(ModeEval) {
		return ModeEval
	}
	return ModeExec
}

// ExecRequest is a unit of code submitted for execution inside the host.
type ExecRequest struct {
	Code string
	Mode Mode
}

// ExecOutput carries whatever the interpreter captured, including on failure.
type ExecOutput struct {
	Stdout string
	Stderr string
	Result any
}

// Interpreter executes code inside the host. Execute is only ever called on
// the designated execution thread.
type Interpreter interface {
	Execute(req ExecRequest) (ExecOutput, error)
}

// ErrNoInterpreter is returned when the host has no code interpreter configured.
var ErrNoInterpreter = errors.New("host: interpreter not available")

// SafeInfo writes msg to the host's info sink. A failing sink never
// propagates to the caller.
func SafeInfo(h Host, msg string) {
	if h == nil {
		return
	}
	defer func() { _ = recover() }()
	h.LogInfo(msg)
}

// SafeError writes msg to the host's error sink. A failing sink never
// propagates to the caller.
func SafeError(h Host, msg string) {
	if h == nil {
		return
	}
	defer func() { _ = recover() }()
	h.LogError(msg)
}
