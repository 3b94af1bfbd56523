// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	BindAddr            string
	DisableServer       bool
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Endpoint paths.
	DiscoveryPath string // GET: tool catalogue.
	InvokePath    string // POST: tool invocation.
	MCPPath       string // MCP Streamable HTTP transport.
	MCPEnabled    bool

	// Log resolution.
	LogPath         string // Explicit override for the host log file.
	ProjectName     string // Used when the host cannot report its own name.
	FallbackLogBase string // Per-user app data root, e.g. %LOCALAPPDATA%.
	EngineDirName   string // Directory under FallbackLogBase holding per-version roots.
	LogLinesDefault int
	LogLinesMax     int

	// Bundled host.
	SavedDir     string
	TickInterval time.Duration
	Shell        string

	// Execution bridge.
	ExecTimeout time.Duration

	// Invocation audit (sqlite). Empty disables it.
	AuditDBPath string

	// Reload.
	EnvFile        string
	WatchEnv       bool
	ReloadDebounce time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// All invalid values are reported together.
func Load() (Config, error) {
	var errs []error
	str := envStr
	num := func(key string, def int) int {
		v, err := envInt(key, def)
		errs = append(errs, err)
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := envBool(key, def)
		errs = append(errs, err)
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Port:                num("MADO_PORT", 3001),
		BindAddr:            str("MADO_BIND_ADDR", "127.0.0.1"),
		DisableServer:       flag("MADO_DISABLE_SERVER", false),
		ReadTimeout:         dur("MADO_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        dur("MADO_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(num("MADO_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		DiscoveryPath:       str("MADO_DISCOVERY_PATH", "/mcp"),
		InvokePath:          str("MADO_INVOKE_PATH", "/mcp/messages"),
		MCPPath:             str("MADO_MCP_PATH", "/mcp/stream"),
		MCPEnabled:          flag("MADO_MCP_ENABLED", true),
		LogPath:             str("MADO_LOG_PATH", ""),
		ProjectName:         str("MADO_PROJECT_NAME", ""),
		FallbackLogBase:     str("MADO_FALLBACK_LOG_BASE", os.Getenv("LOCALAPPDATA")),
		EngineDirName:       str("MADO_ENGINE_DIR_NAME", "UnrealEngine"),
		LogLinesDefault:     num("MADO_LOG_LINES_DEFAULT", 500),
		LogLinesMax:         num("MADO_LOG_LINES_MAX", 5000),
		SavedDir:            str("MADO_SAVED_DIR", "Saved"),
		TickInterval:        dur("MADO_TICK_INTERVAL", 16*time.Millisecond),
		Shell:               str("MADO_SHELL", "/bin/sh"),
		ExecTimeout:         dur("MADO_EXEC_TIMEOUT", 5*time.Second),
		AuditDBPath:         str("MADO_AUDIT_DB", ""),
		EnvFile:             str("MADO_ENV_FILE", ".env"),
		WatchEnv:            flag("MADO_WATCH_ENV", true),
		ReloadDebounce:      dur("MADO_RELOAD_DEBOUNCE", 200*time.Millisecond),
		OTELEndpoint:        str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        flag("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         str("OTEL_SERVICE_NAME", "mado"),
		LogLevel:            str("MADO_LOG_LEVEL", "info"),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

// Validate checks value ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("MADO_PORT must be in 1..65535, got %d", c.Port))
	}
	if c.LogLinesDefault <= 0 {
		errs = append(errs, errors.New("MADO_LOG_LINES_DEFAULT must be positive"))
	}
	if c.LogLinesMax <= 0 {
		errs = append(errs, errors.New("MADO_LOG_LINES_MAX must be positive"))
	}
	if c.LogLinesDefault > c.LogLinesMax {
		errs = append(errs, fmt.Errorf("MADO_LOG_LINES_DEFAULT (%d) exceeds MADO_LOG_LINES_MAX (%d)", c.LogLinesDefault, c.LogLinesMax))
	}
	if c.ExecTimeout <= 0 {
		errs = append(errs, errors.New("MADO_EXEC_TIMEOUT must be positive"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("MADO_TICK_INTERVAL must be positive"))
	}
	if c.ReloadDebounce <= 0 {
		errs = append(errs, errors.New("MADO_RELOAD_DEBOUNCE must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("MADO_MAX_REQUEST_BODY_BYTES must be positive"))
	}

	paths := map[string]string{
		"MADO_DISCOVERY_PATH": c.DiscoveryPath,
		"MADO_INVOKE_PATH":    c.InvokePath,
	}
	if c.MCPEnabled {
		paths["MADO_MCP_PATH"] = c.MCPPath
	}
	seen := make(map[string]string, len(paths))
	for _, key := range []string{"MADO_DISCOVERY_PATH", "MADO_INVOKE_PATH", "MADO_MCP_PATH"} {
		p, ok := paths[key]
		if !ok {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /, got %q", key, p))
			continue
		}
		if other, dup := seen[p]; dup {
			errs = append(errs, fmt.Errorf("%s and %s are both %q", other, key, p))
		}
		seen[p] = key
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
