package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultShellTimeout = 30 * time.Second

// ShellInterpreter runs submitted code as a script for the configured shell.
//
// In exec mode the result is the exit code; in eval mode it is the trimmed
// standard output. A non-zero exit is returned as an error with both streams
// still captured in the output.
type ShellInterpreter struct {
	Shell   string        // defaults to /bin/sh
	Timeout time.Duration // per-script cap, defaults to 30s
	Dir     string        // working directory; "" = inherit
}

// Execute implements Interpreter.
func (s ShellInterpreter) Execute(req ExecRequest) (ExecOutput, error) {
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", req.Code)
	cmd.Dir = s.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := ExecOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.Result = exitErr.ExitCode()
		}
		if ctx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("shell: script exceeded %s", timeout)
		}
		return out, fmt.Errorf("shell: %w", err)
	}

	if req.Mode == ModeEval {
		out.Result = strings.TrimSpace(out.Stdout)
	} else {
		out.Result = 0
	}
	return out, nil
}
