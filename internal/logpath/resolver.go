// Package logpath locates the host's authoritative diagnostic log file.
//
// Resolution walks a fixed precedence order (explicit path, configured
// override, the host's saved directory, platform fallback roots) and stops at
// the first hit. Successful automatic resolutions are cached for the life of
// the Resolver; misses are never cached because the host may not have created
// its log yet.
package logpath

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/mado/internal/host"
)

// Resolved is the result of a resolution attempt. Path is "" on a miss.
type Resolved struct {
	Path     string   `json:"resolved"`
	Searched []string `json:"searched"`
}

// Found reports whether a log file was located.
func (r Resolved) Found() bool { return r.Path != "" }

func (r Resolved) clone() Resolved {
	return Resolved{Path: r.Path, Searched: slices.Clone(r.Searched)}
}

// Config holds the process-wide resolution settings.
type Config struct {
	// Override is an explicit log file configured for the whole process.
	Override string
	// ProjectName is used when the host cannot report its own name.
	ProjectName string
	// FallbackBase is a per-user application data root (e.g. %LOCALAPPDATA%).
	// Empty disables the platform fallback step.
	FallbackBase string
	// EngineDirName is the directory under FallbackBase whose children are
	// per-version engine roots, each with Saved/Logs.
	EngineDirName string
}

// Resolver finds and caches the current log file path.
type Resolver struct {
	host host.Host
	cfg  Config

	mu     sync.Mutex
	cached *Resolved

	group singleflight.Group
}

// New creates a Resolver. h may be nil when no host API is available.
func New(h host.Host, cfg Config) *Resolver {
	return &Resolver{host: h, cfg: cfg}
}

// ProjectName returns the host-reported project name, falling back to the
// configured one.
func (r *Resolver) ProjectName() string {
	if r.host != nil {
		if name := safeString(r.host.ProjectName); name != "" {
			return name
		}
	}
	return r.cfg.ProjectName
}

// Cached returns the cached resolution, if any. The cached path is not
// re-validated.
func (r *Resolver) Cached() (Resolved, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return Resolved{}, false
	}
	return r.cached.clone(), true
}

func (r *Resolver) store(res Resolved) {
	c := res.clone()
	r.mu.Lock()
	r.cached = &c
	r.mu.Unlock()
}

// Resolve locates the log file.
//
// An explicit path that names an existing regular file is returned as-is and
// never touches the cache. Without an explicit path and with useCache set, a
// cached result is returned without probing the filesystem. Concurrent
// automatic resolutions share a single search.
func (r *Resolver) Resolve(explicit string, useCache bool) Resolved {
	if explicit == "" && useCache {
		if c, ok := r.Cached(); ok {
			return c
		}
	}
	if explicit != "" {
		return r.resolve(explicit)
	}
	v, _, _ := r.group.Do("auto", func() (any, error) {
		return r.resolve(""), nil
	})
	return v.(Resolved).clone()
}

func (r *Resolver) resolve(explicit string) Resolved {
	p := &trail{}

	if explicit != "" {
		if f, ok := p.file(explicit); ok {
			return Resolved{Path: f, Searched: p.searched}
		}
	}

	if r.cfg.Override != "" {
		if f, ok := p.file(r.cfg.Override); ok {
			res := Resolved{Path: f, Searched: p.searched}
			r.store(res)
			return res
		}
	}

	project := r.ProjectName()

	if r.host != nil {
		if saved := safeString(r.host.SavedDir); saved != "" {
			logs := p.listLogs(filepath.Join(saved, "Logs"))
			if picked := PickNewest(logs, project); picked != "" {
				res := Resolved{Path: picked, Searched: p.searched}
				r.store(res)
				return res
			}
		}
	}

	if base := r.cfg.FallbackBase; base != "" {
		if r.cfg.EngineDirName != "" {
			root := filepath.Clean(filepath.Join(base, r.cfg.EngineDirName))
			p.searched = append(p.searched, root)
			var logs []string
			for _, dir := range subdirs(root) {
				logs = append(logs, p.listLogs(filepath.Join(dir, "Saved", "Logs"))...)
			}
			if picked := PickNewest(logs, project); picked != "" {
				res := Resolved{Path: picked, Searched: p.searched}
				r.store(res)
				return res
			}
		}

		if project != "" {
			logs := p.listLogs(filepath.Join(base, project, "Saved", "Logs"))
			if picked := PickNewest(logs, project); picked != "" {
				res := Resolved{Path: picked, Searched: p.searched}
				r.store(res)
				return res
			}
		}
	}

	return Resolved{Searched: p.searched}
}

// trail records every location it looks at, in order.
type trail struct {
	searched []string
}

// file normalizes p and reports whether it names an existing regular file.
func (pr *trail) file(p string) (string, bool) {
	p = Normalize(p)
	pr.searched = append(pr.searched, p)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

// listLogs returns the *.log entries of dir. Unreadable directories yield
// nothing rather than an error.
func (pr *trail) listLogs(dir string) []string {
	dir = filepath.Clean(dir)
	pr.searched = append(pr.searched, dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".log") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

func subdirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(root, e.Name()))
		}
	}
	return out
}

var envRef = regexp.MustCompile(`\$(\w+|\{[^}]*\})`)

// Normalize expands a leading ~ and $VAR / ${VAR} references, then cleans
// the path using the platform separator. References to unset variables are
// left as written.
func Normalize(p string) string {
	p = envRef.ReplaceAllStringFunc(p, func(ref string) string {
		name := strings.Trim(ref[1:], "{}")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return filepath.Clean(filepath.FromSlash(p))
}

// safeString calls a host accessor, treating a panic as "absent".
func safeString(fn func() string) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return fn()
}
