package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/mado/internal/config"
	"github.com/ashita-ai/mado/internal/host"
	"github.com/ashita-ai/mado/internal/storage"
	"github.com/ashita-ai/mado/internal/tools"
	"github.com/ashita-ai/mado/migrations"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:                0, // any free port
		BindAddr:            "127.0.0.1",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		MaxRequestBodyBytes: 1 << 20,
		DiscoveryPath:       "/mcp",
		InvokePath:          "/mcp/messages",
		MCPPath:             "/mcp/stream",
		MCPEnabled:          true,
		ProjectName:         "Demo",
		LogLinesDefault:     500,
		LogLinesMax:         5000,
		ExecTimeout:         5 * time.Second,
	}
}

// newHost starts a LocalHost frame loop for the duration of the test.
func newHost(t *testing.T) *host.LocalHost {
	t.Helper()
	h, err := host.NewLocalHost(host.LocalConfig{
		ProjectName:  "Demo",
		SavedDir:     t.TempDir(),
		TickInterval: 5 * time.Millisecond,
		Interpreter:  host.ShellInterpreter{},
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = h.Close()
	})
	return h
}

func newLifecycle(t *testing.T, h *host.LocalHost, audit *storage.DB) *Lifecycle {
	t.Helper()
	l := NewLifecycle(Deps{Host: h, Interpreter: h, Audit: audit, Logger: quietLogger(), Version: "test"}, false)
	t.Cleanup(l.Stop)
	return l
}

func baseURL(l *Lifecycle) string {
	return "http://" + l.Addr().String()
}

func postJSON(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestLifecycle_StartServesAndRegistersBridge(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)

	assert.Equal(t, StateStopped, l.State())
	require.NoError(t, l.Start(testConfig(t)))
	assert.Equal(t, StateRunning, l.State())
	require.NotNil(t, l.Addr())
	assert.True(t, l.Context().Bridge.Ready())

	pre, post := h.TickCallbacks()
	assert.Equal(t, 0, pre)
	assert.Equal(t, 1, post, "post tick is preferred")

	resp, err := http.Get(baseURL(l) + "/mcp")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tools, 3)
	assert.Equal(t, tools.ToolGetLogs, body.Tools[0].Name)
	assert.Contains(t, body.Tools[0].Description, "(current: ")
	assert.Contains(t, body.Tools[0].Description, "Demo.log")
}

func TestLifecycle_EndToEnd(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)
	require.NoError(t, l.Start(testConfig(t)))

	t.Run("exec runs on the host loop", func(t *testing.T) {
		before := h.Frames()
		code, body := postJSON(t, baseURL(l)+"/mcp/messages", tools.Call{
			Tool:      tools.ToolExec,
			Arguments: map[string]any{"code": "echo hello", "mode": "eval"},
		})
		require.Equal(t, http.StatusOK, code, body)
		result := body["result"].(map[string]any)
		assert.Equal(t, true, result["ok"])
		assert.Equal(t, tools.ExecOK, result["status"])
		assert.Equal(t, "hello", result["result"])
		assert.Greater(t, h.Frames(), before)
	})

	t.Run("get_logs reads the host diagnostic log", func(t *testing.T) {
		code, body := postJSON(t, baseURL(l)+"/mcp/messages", tools.Call{
			Tool:      tools.ToolGetLogs,
			Arguments: map[string]any{"limit": 50},
		})
		require.Equal(t, http.StatusOK, code, body)
		lines, ok := body["result"].([]any)
		require.True(t, ok)
		joined := fmt.Sprint(lines...)
		assert.Contains(t, joined, "mado server listening")
		assert.Contains(t, joined, "Main-thread runner registered via post-tick callback")
	})

	t.Run("get_log_path reports the host log", func(t *testing.T) {
		code, body := postJSON(t, baseURL(l)+"/mcp/messages", tools.Call{Tool: tools.ToolGetLogPath})
		require.Equal(t, http.StatusOK, code, body)
		result := body["result"].(map[string]any)
		assert.Equal(t, "Demo", result["project"])
		assert.Equal(t, h.LogPath(), result["resolved"])
		assert.Equal(t, map[string]any{"override_env": EnvLogPath, "port_env": EnvPort}, result["hint"])
	})

	t.Run("unknown tool is 400", func(t *testing.T) {
		code, body := postJSON(t, baseURL(l)+"/mcp/messages", tools.Call{Tool: "host_logs/nope"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "tool not found or invalid")
	})
}

func TestLifecycle_RestartReplacesListenerAndTick(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)

	require.NoError(t, l.Start(testConfig(t)))
	first := l.Context()
	oldAddr := l.Addr().String()

	require.NoError(t, l.Restart(testConfig(t)))
	assert.Equal(t, StateRunning, l.State())
	assert.NotSame(t, first, l.Context(), "restart builds a fresh context")
	assert.False(t, first.Bridge.Ready(), "previous bridge is stopped")

	_, post := h.TickCallbacks()
	assert.Equal(t, 1, post, "previous tick callback is unregistered")

	_, err := net.DialTimeout("tcp", oldAddr, 200*time.Millisecond)
	if oldAddr != l.Addr().String() {
		assert.Error(t, err, "previous listener is closed")
	}
}

func TestLifecycle_BindFailureKeepsBridge(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	cfg := testConfig(t)
	cfg.Port = busy.Addr().(*net.TCPAddr).Port

	err = l.Start(cfg)
	require.Error(t, err)
	assert.Equal(t, StateStopped, l.State())
	assert.Nil(t, l.Addr())
	assert.True(t, l.Context().Bridge.Ready(), "bridge registration is independent of the listener")

	data, err := os.ReadFile(h.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "in use?")
}

func TestLifecycle_DisableServer(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)

	cfg := testConfig(t)
	cfg.DisableServer = true
	require.NoError(t, l.Start(cfg))
	assert.Equal(t, StateRunning, l.State())
	assert.Nil(t, l.Addr())

	v, err := l.Context().Bridge.Submit(context.Background(), func() (any, error) { return "ran", nil })
	require.NoError(t, err)
	assert.Equal(t, "ran", v)
}

func TestLifecycle_StopIsIdempotent(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)
	require.NoError(t, l.Start(testConfig(t)))

	l.Stop()
	l.Stop()
	assert.Equal(t, StateStopped, l.State())
	assert.Nil(t, l.Addr())
	pre, post := h.TickCallbacks()
	assert.Zero(t, pre+post)
}

func TestInvoke_RecordsAudit(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "audit.db"), migrations.FS, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := newHost(t)
	l := newLifecycle(t, h, db)
	require.NoError(t, l.Start(testConfig(t)))

	code, _ := postJSON(t, baseURL(l)+"/mcp/messages", tools.Call{Tool: tools.ToolGetLogPath})
	require.Equal(t, http.StatusOK, code)
	code, _ = postJSON(t, baseURL(l)+"/mcp/messages", tools.Call{Tool: "nope"})
	require.Equal(t, http.StatusBadRequest, code)

	invs, err := db.RecentInvocations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "nope", invs[0].Tool)
	assert.Equal(t, string(tools.StatusUnknownTool), invs[0].Status)
	assert.Equal(t, "http", invs[1].Transport)
	assert.Equal(t, string(tools.StatusOK), invs[1].Status)
	assert.NotEmpty(t, invs[1].RequestID)

	resp, err := http.Get(baseURL(l) + "/invocations?limit=1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReload(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)

	t.Setenv("MADO_DISABLE_SERVER", "true")
	t.Setenv("MADO_PROJECT_NAME", "Reloaded")
	require.NoError(t, l.Reload("", "test"))
	assert.Equal(t, StateRunning, l.State())
	assert.Equal(t, "Reloaded", l.Context().Config.ProjectName)

	good := l.Context()
	t.Setenv("MADO_PORT", "not-a-port")
	require.Error(t, l.Reload("", "test"))
	assert.Same(t, good, l.Context(), "invalid config keeps the running generation")
}

func TestReload_ReadsEnvFile(t *testing.T) {
	h := newHost(t)
	l := newLifecycle(t, h, nil)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MADO_DISABLE_SERVER=true\nMADO_LOG_LINES_DEFAULT=42\n"), 0o600))
	// Registered so t.Setenv restores them after godotenv overwrites.
	t.Setenv("MADO_DISABLE_SERVER", "")
	t.Setenv("MADO_LOG_LINES_DEFAULT", "")

	require.NoError(t, l.Reload(envFile, "test"))
	assert.Equal(t, 42, l.Context().Config.LogLinesDefault)
}

func TestFileWatch_CoalescesBurstIntoOneReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("A=1\n"), 0o600))

	const debounce = 50 * time.Millisecond
	var (
		mu       sync.Mutex
		triggers []string
	)
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(triggers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		FileWatch{Path: path, Debounce: debounce, Logger: quietLogger()}.Run(ctx, func(trigger string) {
			mu.Lock()
			defer mu.Unlock()
			triggers = append(triggers, trigger)
		})
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to subscribe.
	time.Sleep(100 * time.Millisecond)
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("A=1\n", i+2)), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return count() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(4 * debounce)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, triggers, 1, "a burst of writes reloads once")
	assert.True(t, strings.HasPrefix(triggers[0], "env_file:"))
	assert.Contains(t, triggers[0], "WRITE")
}
