package logpath

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// PickNewest applies the newest-log selection rule to candidate files.
//
// When project is set, files whose base name starts with it
// (case-insensitively) and ends in ".log" are preferred; if none match, all
// candidates are considered. Only regular files take part. The most recently
// modified file wins; equal modification times are ordered by path ascending
// and the first is chosen. Returns "" when nothing qualifies.
func PickNewest(files []string, project string) string {
	if len(files) == 0 {
		return ""
	}

	candidates := files
	if project != "" {
		prefix := strings.ToLower(project)
		var preferred []string
		for _, f := range files {
			base := strings.ToLower(filepath.Base(f))
			if strings.HasPrefix(base, prefix) && strings.HasSuffix(base, ".log") {
				preferred = append(preferred, f)
			}
		}
		if len(preferred) > 0 {
			candidates = preferred
		}
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	entries := make([]entry, 0, len(candidates))
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, entry{path: c, modTime: info.ModTime()})
	}
	if len(entries) == 0 {
		return ""
	}

	slices.SortFunc(entries, func(a, b entry) int {
		if c := b.modTime.Compare(a.modTime); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	return entries[0].path
}
