package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/mado/internal/config"
	"github.com/ashita-ai/mado/internal/host"
	"github.com/ashita-ai/mado/internal/server"
)

// State is the server lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// stopTimeout bounds how long a restart waits for the previous listener.
const stopTimeout = time.Second

// Lifecycle starts, restarts and stops the HTTP listener and the execution
// bridge. All methods are safe for concurrent use.
type Lifecycle struct {
	deps    Deps
	logger  *slog.Logger
	tracing bool

	mu    sync.Mutex
	cur   *Context
	srv   *server.Server
	addr  net.Addr
	done  chan struct{} // closed when the accept loop returns
	state atomic.Int32
}

// NewLifecycle returns a stopped Lifecycle. tracing wraps the HTTP handler
// in otelhttp spans.
func NewLifecycle(d Deps, tracing bool) *Lifecycle {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d.Logger = logger
	return &Lifecycle{deps: d, logger: logger, tracing: tracing}
}

// State reports the current lifecycle state.
func (l *Lifecycle) State() State { return State(l.state.Load()) }

// Context returns the live Context, or nil before the first Start.
func (l *Lifecycle) Context() *Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

// Addr returns the bound listen address, or nil when not listening.
func (l *Lifecycle) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Start stops whatever a previous Start left running, builds a fresh Context
// for cfg, binds the listener, and registers the bridge with the host tick.
//
// The bridge is registered even when the bind fails or the server is
// disabled, so in-process callers can still use it. A bind failure is
// returned and leaves the state Stopped; it is not retried.
func (l *Lifecycle) Start(cfg config.Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	l.state.Store(int32(StateStarting))

	c, err := NewContext(cfg, l.deps)
	if err != nil {
		l.state.Store(int32(StateStopped))
		return err
	}
	l.cur = c

	var bindErr error
	if cfg.DisableServer {
		l.logger.Info("http server disabled")
	} else {
		bindErr = l.listenLocked(c)
	}

	c.Bridge.Ensure()

	if bindErr != nil {
		l.state.Store(int32(StateStopped))
		return bindErr
	}
	l.state.Store(int32(StateRunning))
	return nil
}

// Restart is Start with a new configuration.
func (l *Lifecycle) Restart(cfg config.Config) error {
	l.logger.Info("lifecycle restarting")
	return l.Start(cfg)
}

// Stop shuts down the listener and unregisters the bridge. It is idempotent.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Lifecycle) listenLocked(c *Context) error {
	cfg := c.Config
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		err = fmt.Errorf("app: listen on %s: %w", cfg.Addr(), err)
		l.logger.Error("http server failed to start", "addr", cfg.Addr(), "error", err)
		host.SafeError(c.Host, fmt.Sprintf("Failed to start mado server (port %d in use?): %v", cfg.Port, err))
		return err
	}

	scfg := server.ServerConfig{
		Registry:            c.Registry,
		Invoker:             c,
		Logger:              l.logger,
		Notes:               c.Notes,
		Bridge:              c.Bridge,
		DiscoveryPath:       cfg.DiscoveryPath,
		InvokePath:          cfg.InvokePath,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             l.deps.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		Tracing:             l.tracing,
	}
	if c.Audit != nil {
		scfg.Audit = c.Audit
	}
	if c.MCP != nil {
		scfg.MCPServer = c.MCP.MCPServer()
		scfg.MCPPath = cfg.MCPPath
	}
	srv := server.New(scfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("http server stopped", "error", err)
			host.SafeError(c.Host, fmt.Sprintf("mado server stopped: %v", err))
			l.state.CompareAndSwap(int32(StateRunning), int32(StateStopped))
		}
	}()

	l.srv, l.addr, l.done = srv, ln.Addr(), done
	host.SafeInfo(c.Host, fmt.Sprintf("mado server listening on http://%s", ln.Addr()))
	return nil
}

func (l *Lifecycle) stopLocked() {
	if l.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := l.srv.Shutdown(ctx); err != nil {
			l.logger.Warn("http server shutdown", "error", err)
		}
		cancel()
		select {
		case <-l.done:
		case <-time.After(stopTimeout):
			l.logger.Warn("accept loop did not exit in time")
		}
		l.srv, l.addr, l.done = nil, nil, nil
	}
	if l.cur != nil {
		l.cur.Bridge.Stop()
	}
	l.state.Store(int32(StateStopped))
}
