// Package bridge marshals work from arbitrary goroutines onto the host's
// single designated execution thread.
//
// Submitters append a work item to a FIFO hand-off queue and block, up to a
// fixed timeout, until the item has run. The queue is drained by Pump, which
// the host invokes from its own frame loop through a registered tick
// callback. The bridge never creates the execution thread itself.
//
// There is no cancellation channel back to the execution thread: a
// submission that times out stays queued and still runs later, so a timeout
// means "outcome unknown", not "cancelled".
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/mado/internal/host"
)

// DefaultTimeout bounds how long Submit waits for its work item.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUnavailable is returned by Submit when no tick registration with the
	// host succeeded, so queued work would never run.
	ErrUnavailable = errors.New("bridge: main-thread runner not available")

	// ErrTimeout is returned by Submit when the work item did not complete in
	// time. The item remains queued and will still execute.
	ErrTimeout = errors.New("bridge: timed out waiting for main-thread execution")

	// ErrStopped completes items still queued when the bridge is stopped.
	ErrStopped = errors.New("bridge: stopped before execution")
)

// Fault is a panic captured while executing a work item.
type Fault struct {
	Value any
	Stack string
}

func (f *Fault) Error() string { return fmt.Sprintf("panic: %v", f.Value) }

// Thunk is a unit of work executed on the designated thread.
type Thunk func() (any, error)

// TickKind records which host registration pair the bridge used.
type TickKind string

const (
	TickNone TickKind = ""
	TickPost TickKind = "post"
	TickPre  TickKind = "pre"
)

type workItem struct {
	id       uuid.UUID
	thunk    Thunk
	done     chan struct{}
	enqueued time.Time

	// Written by the consumer before done is closed.
	result any
	err    error
}

// Bridge is the hand-off queue plus its host registration.
type Bridge struct {
	host    host.Host
	logger  *slog.Logger
	timeout time.Duration
	metrics *metrics

	mu    sync.Mutex
	queue []*workItem
	open  bool // admitting submissions; cleared by Stop in the same section that drains

	regMu       sync.Mutex
	initialized bool
	ready       bool
	kind        TickKind
	handle      host.TickHandle
}

// New creates a bridge for h. A non-positive timeout selects DefaultTimeout.
// The bridge is not ready until Ensure registers it with the host.
func New(h host.Host, logger *slog.Logger, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		host:    h,
		logger:  logger,
		timeout: timeout,
	}
	b.metrics = newMetrics(logger)
	return b
}

// Timeout returns the fixed submit timeout.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

// Ensure registers the bridge's pump with the host's tick mechanism, trying
// the post-frame registration first and the pre-frame one second. It is
// idempotent until Stop. Returns whether the bridge is ready.
func (b *Bridge) Ensure() bool {
	b.regMu.Lock()
	defer b.regMu.Unlock()

	if b.initialized {
		return b.ready
	}
	b.initialized = true
	b.ready = false

	if b.host == nil {
		b.logger.Warn("bridge: no host available; exec disabled")
		return false
	}

	tick := func(time.Duration) { b.Pump() }

	var (
		handle host.TickHandle
		kind   TickKind
		err    error
	)
	switch h := b.host.(type) {
	case host.PostTicker:
		kind = TickPost
		handle, err = safeRegister(h.RegisterPostTick, tick)
	default:
		if pre, ok := b.host.(host.PreTicker); ok {
			kind = TickPre
			handle, err = safeRegister(pre.RegisterPreTick, tick)
		} else {
			host.SafeError(b.host, "No tick callback registration found; cannot run exec on main thread.")
			b.logger.Warn("bridge: host exposes no tick registration; exec disabled")
			return false
		}
	}
	if err != nil {
		host.SafeError(b.host, fmt.Sprintf("Failed to register main-thread runner: %v", err))
		b.logger.Error("bridge: tick registration failed", "kind", kind, "error", err)
		return false
	}

	b.kind = kind
	b.handle = handle
	b.ready = true
	b.mu.Lock()
	b.open = true
	b.mu.Unlock()
	b.metrics.observeDepth(b)
	host.SafeInfo(b.host, fmt.Sprintf("Main-thread runner registered via %s-tick callback", kind))
	b.logger.Info("bridge: registered", "kind", kind)
	return true
}

func safeRegister(register func(host.TickFunc) (host.TickHandle, error), fn host.TickFunc) (h host.TickHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register panicked: %v", r)
		}
	}()
	return register(fn)
}

// Ready reports whether submissions can run.
func (b *Bridge) Ready() bool {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	return b.ready
}

// Kind reports which tick registration is active.
func (b *Bridge) Kind() TickKind {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	return b.kind
}

// Pending returns the number of queued work items.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Submit queues thunk for the execution thread and waits for its result.
//
// It fails fast with ErrUnavailable when the bridge is not ready, leaving the
// queue untouched. It returns ErrTimeout after the fixed timeout, or ctx's
// error if ctx ends first; in both cases the item still runs later. A panic
// inside thunk is returned as a *Fault.
func (b *Bridge) Submit(ctx context.Context, thunk Thunk) (any, error) {
	if thunk == nil {
		return nil, errors.New("bridge: nil thunk")
	}

	item := &workItem{
		id:       uuid.New(),
		thunk:    thunk,
		done:     make(chan struct{}),
		enqueued: time.Now(),
	}
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		b.metrics.submitted(ctx, "unavailable")
		return nil, ErrUnavailable
	}
	b.queue = append(b.queue, item)
	b.mu.Unlock()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-item.done:
		status := "ok"
		if item.err != nil {
			status = "error"
		}
		b.metrics.submitted(ctx, status)
		return item.result, item.err
	case <-timer.C:
		b.metrics.submitted(ctx, "timeout")
		b.logger.Warn("bridge: submit timed out; item remains queued",
			"item_id", item.id, "timeout", b.timeout)
		return nil, ErrTimeout
	case <-ctx.Done():
		b.metrics.submitted(ctx, "cancelled")
		return nil, fmt.Errorf("bridge: wait abandoned, item remains queued: %w", ctx.Err())
	}
}

// Pump runs the items queued at the time of the call, in FIFO order, and
// returns. Items submitted while pumping wait for the next call. It must be
// invoked from the execution thread and never panics.
func (b *Bridge) Pump() {
	b.mu.Lock()
	n := len(b.queue)
	b.mu.Unlock()

	for range n {
		item := b.dequeue()
		if item == nil {
			return
		}
		b.run(item)
	}
}

func (b *Bridge) dequeue() *workItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	item := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return item
}

func (b *Bridge) run(item *workItem) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			item.result = nil
			item.err = &Fault{Value: r, Stack: string(debug.Stack())}
		}
		if item.err != nil {
			host.SafeError(b.host, fmt.Sprintf("Main-thread task failed: %v", item.err))
		}
		b.metrics.ran(time.Since(start), time.Since(item.enqueued), item.err)
		close(item.done)
	}()
	item.result, item.err = item.thunk()
}

// Stop deregisters the pump from the host using the same registration kind
// that succeeded in Ensure, and completes any still-queued items with
// ErrStopped. It is idempotent; a later Ensure registers again.
func (b *Bridge) Stop() {
	b.regMu.Lock()
	kind, handle := b.kind, b.handle
	b.kind, b.handle = TickNone, 0
	b.initialized = false
	b.ready = false
	b.metrics.stopDepth()
	b.regMu.Unlock()

	switch kind {
	case TickPost:
		if h, ok := b.host.(host.PostTicker); ok {
			safeUnregister(h.UnregisterPostTick, handle)
		}
	case TickPre:
		if h, ok := b.host.(host.PreTicker); ok {
			safeUnregister(h.UnregisterPreTick, handle)
		}
	}
	if kind != TickNone {
		b.logger.Info("bridge: unregistered", "kind", kind)
	}

	b.mu.Lock()
	b.open = false
	orphans := b.queue
	b.queue = nil
	b.mu.Unlock()
	for _, item := range orphans {
		item.err = ErrStopped
		close(item.done)
	}
	if len(orphans) > 0 {
		b.logger.Warn("bridge: stopped with queued items", "count", len(orphans))
	}
}

func safeUnregister(unregister func(host.TickHandle), h host.TickHandle) {
	defer func() { _ = recover() }()
	unregister(h)
}
