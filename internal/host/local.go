package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// LocalConfig configures a LocalHost.
type LocalConfig struct {
	ProjectName  string
	SavedDir     string
	TickInterval time.Duration
	Interpreter  Interpreter  // nil = exec unavailable
	Logger       *slog.Logger // process logger; host diagnostics are mirrored at debug level
}

// LocalHost is a self-contained host application: a frame loop pinned to one
// OS thread, pre/post tick callback registries, and a diagnostic log file
// under <SavedDir>/Logs.
type LocalHost struct {
	cfg     LocalConfig
	logger  *slog.Logger
	diag    *slog.Logger
	logFile *os.File
	logPath string

	mu         sync.Mutex
	nextHandle TickHandle
	pre        map[TickHandle]TickFunc
	post       map[TickHandle]TickFunc

	frames atomic.Uint64
}

// NewLocalHost creates the host's Logs directory and opens its diagnostic
// log file for appending. Call Close to release it.
func NewLocalHost(cfg LocalConfig) (*LocalHost, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 16 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ProjectName
	if name == "" {
		name = "Host"
	}

	h := &LocalHost{
		cfg:    cfg,
		logger: logger,
		pre:    make(map[TickHandle]TickFunc),
		post:   make(map[TickHandle]TickFunc),
	}

	if cfg.SavedDir != "" {
		logsDir := filepath.Join(cfg.SavedDir, "Logs")
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, fmt.Errorf("host: create logs dir: %w", err)
		}
		h.logPath = filepath.Join(logsDir, name+".log")
		f, err := os.OpenFile(h.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("host: open log file %q: %w", h.logPath, err)
		}
		h.logFile = f
		h.diag = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return h, nil
}

// ProjectName implements Host.
func (h *LocalHost) ProjectName() string { return h.cfg.ProjectName }

// SavedDir implements Host.
func (h *LocalHost) SavedDir() string { return h.cfg.SavedDir }

// LogPath returns the diagnostic log file this host writes to, or "".
func (h *LocalHost) LogPath() string { return h.logPath }

// Frames returns the number of frames run so far.
func (h *LocalHost) Frames() uint64 { return h.frames.Load() }

// LogInfo implements Host.
func (h *LocalHost) LogInfo(msg string) {
	if h.diag != nil {
		h.diag.Info(msg)
	}
	h.logger.Debug("host log", "level", "info", "msg", msg)
}

// LogError implements Host.
func (h *LocalHost) LogError(msg string) {
	if h.diag != nil {
		h.diag.Error(msg)
	}
	h.logger.Debug("host log", "level", "error", "msg", msg)
}

// RegisterPostTick implements PostTicker.
func (h *LocalHost) RegisterPostTick(fn TickFunc) (TickHandle, error) {
	return h.register(h.post, fn)
}

// UnregisterPostTick implements PostTicker.
func (h *LocalHost) UnregisterPostTick(handle TickHandle) {
	h.mu.Lock()
	delete(h.post, handle)
	h.mu.Unlock()
}

// RegisterPreTick implements PreTicker.
func (h *LocalHost) RegisterPreTick(fn TickFunc) (TickHandle, error) {
	return h.register(h.pre, fn)
}

// UnregisterPreTick implements PreTicker.
func (h *LocalHost) UnregisterPreTick(handle TickHandle) {
	h.mu.Lock()
	delete(h.pre, handle)
	h.mu.Unlock()
}

func (h *LocalHost) register(set map[TickHandle]TickFunc, fn TickFunc) (TickHandle, error) {
	if fn == nil {
		return 0, fmt.Errorf("host: nil tick callback")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextHandle++
	set[h.nextHandle] = fn
	return h.nextHandle, nil
}

// TickCallbacks reports how many pre and post callbacks are registered.
func (h *LocalHost) TickCallbacks() (pre, post int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pre), len(h.post)
}

// Execute implements Interpreter by delegating to the configured interpreter.
func (h *LocalHost) Execute(req ExecRequest) (ExecOutput, error) {
	if h.cfg.Interpreter == nil {
		return ExecOutput{}, ErrNoInterpreter
	}
	return h.cfg.Interpreter.Execute(req)
}

// Run drives the frame loop on the calling goroutine, which is locked to its
// OS thread for the loop's lifetime. It returns when ctx is cancelled.
func (h *LocalHost) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	h.LogInfo(fmt.Sprintf("host main loop started (project=%q, interval=%s)", h.cfg.ProjectName, h.cfg.TickInterval))
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.LogInfo("host main loop stopped")
			return nil
		case now := <-ticker.C:
			h.Tick(now.Sub(last))
			last = now
		}
	}
}

// Tick runs one frame: pre callbacks, then post callbacks, each in
// registration order. It must only be called from the loop thread; Run does
// so, and tests may call it directly to stand in for the loop.
func (h *LocalHost) Tick(delta time.Duration) {
	pre, post := h.snapshot()
	for _, fn := range pre {
		h.invoke(fn, delta)
	}
	for _, fn := range post {
		h.invoke(fn, delta)
	}
	h.frames.Add(1)
}

func (h *LocalHost) snapshot() (pre, post []TickFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ordered(h.pre), ordered(h.post)
}

func ordered(set map[TickHandle]TickFunc) []TickFunc {
	handles := make([]TickHandle, 0, len(set))
	for k := range set {
		handles = append(handles, k)
	}
	slices.Sort(handles)
	fns := make([]TickFunc, len(handles))
	for i, k := range handles {
		fns[i] = set[k]
	}
	return fns
}

func (h *LocalHost) invoke(fn TickFunc, delta time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			h.LogError(fmt.Sprintf("tick callback panicked: %v", r))
		}
	}()
	fn(delta)
}

// Close releases the diagnostic log file.
func (h *LocalHost) Close() error {
	if h.logFile == nil {
		return nil
	}
	return h.logFile.Close()
}
