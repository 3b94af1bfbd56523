package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/mado/internal/bridge"
	"github.com/ashita-ai/mado/internal/telemetry"
)

var (
	// ErrUnknownTool is returned for a call naming no registered tool.
	ErrUnknownTool = errors.New("tool not found or invalid")

	// ErrInvalidArguments is returned when arguments fail the tool's
	// declared parameters.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Call is the inbound tool-call envelope.
type Call struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Status classifies an Outcome.
type Status string

const (
	StatusOK               Status = "ok"
	StatusUnknownTool      Status = "unknown_tool"
	StatusInvalidArguments Status = "invalid_arguments"
	StatusFault            Status = "fault"
)

// Outcome is the result of dispatching one call. Exactly one of Result and
// Err is meaningful, as selected by Status.
type Outcome struct {
	Tool     string
	Result   any
	Err      error
	Status   Status
	Duration time.Duration
}

// OK reports whether the handler returned a result.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// ProtocolFault reports whether the caller sent a bad call, as opposed to
// the handler failing.
func (o Outcome) ProtocolFault() bool {
	return o.Status == StatusUnknownTool || o.Status == StatusInvalidArguments
}

var tracer trace.Tracer = telemetry.Tracer("mado/tools")

// Dispatch resolves call.Tool, drops arguments the tool does not declare,
// checks required arguments, and invokes the handler. It never panics: a
// handler panic is returned as a *bridge.Fault with StatusFault.
func (r *Registry) Dispatch(ctx context.Context, call Call) (out Outcome) {
	start := time.Now()
	out.Tool = call.Tool

	ctx, span := tracer.Start(ctx, "tools.dispatch",
		trace.WithAttributes(attribute.String("mado.tool", call.Tool)))
	defer func() {
		out.Duration = time.Since(start)
		span.SetAttributes(attribute.String("mado.status", string(out.Status)))
		if out.Err != nil {
			span.SetStatus(codes.Error, out.Err.Error())
		}
		span.End()
	}()

	t, ok := r.Lookup(call.Tool)
	if !ok {
		out.Status = StatusUnknownTool
		out.Err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Tool)
		return out
	}

	args := make(Args, len(t.fields))
	for k, v := range call.Arguments {
		if t.accepts(k) {
			args[k] = v
		}
	}
	for _, f := range t.fields {
		if f.Required && !args.Has(f.Name) {
			out.Status = StatusInvalidArguments
			out.Err = fmt.Errorf("%w: missing required argument: %s", ErrInvalidArguments, f.Name)
			return out
		}
	}

	result, err := invoke(ctx, t, args)
	var be *bindError
	switch {
	case err == nil:
		out.Status = StatusOK
		out.Result = result
	case errors.As(err, &be):
		out.Status = StatusInvalidArguments
		out.Err = fmt.Errorf("%w: %w", ErrInvalidArguments, be.err)
	default:
		out.Status = StatusFault
		out.Err = err
	}
	return out
}

func invoke(ctx context.Context, t Tool, args Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &bridge.Fault{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return t.invoke(ctx, args)
}
