// Package procname implements C3: a never-evicted pid-to-display-name
// cache. Grounded on the teacher's collector discovery pattern of trying a
// precise OS query first and falling back to a broader enumeration
// (collector/logs.go's discoverServices tries systemctl, then falls back to
// scanning known unit names) — generalized here to "query this one pid,
// fall back to a full snapshot".
package procname

import (
	"fmt"
	"sync"
)

// Querier abstracts the OS-specific process lookup. The real implementation
// (Windows: QueryFullProcessImageName) lives behind a build tag; tests use a
// fake.
type Querier interface {
	// ImagePath returns the full image path for pid, or ok=false if the OS
	// query failed (process exited, access denied, unsupported platform).
	ImagePath(pid uint32) (string, bool)
	// Snapshot returns pid -> image basename for every process currently
	// alive, used as a fallback when the direct query fails.
	Snapshot() map[uint32]string
}

// Cache is C3. Safe for concurrent use.
type Cache struct {
	querier Querier

	mu      sync.Mutex
	names   map[uint32]string
}

// New creates a Cache backed by querier. A nil querier yields a Cache that
// always falls through to the "[PID:<n>]" sentinel — useful on platforms
// without a real implementation wired in yet.
func New(querier Querier) *Cache {
	return &Cache{querier: querier, names: make(map[uint32]string)}
}

// NameOf returns pid's stable display basename, per §4.3's rule order: the
// two well-known pids, then a direct OS query, then a full-snapshot
// fallback, then the PID sentinel. Once resolved, a pid's name never
// changes — a dead pid keeps its last-known name so historical rows stay
// legible.
func (c *Cache) NameOf(pid uint32) string {
	switch pid {
	case 0:
		return "System Idle"
	case 4:
		return "System"
	}

	c.mu.Lock()
	if name, ok := c.names[pid]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	name := c.resolve(pid)

	c.mu.Lock()
	// Another goroutine may have resolved and cached this pid first;
	// memoization is write-once so keep whichever arrived first.
	if existing, ok := c.names[pid]; ok {
		name = existing
	} else {
		c.names[pid] = name
	}
	c.mu.Unlock()

	return name
}

func (c *Cache) resolve(pid uint32) string {
	if c.querier != nil {
		if path, ok := c.querier.ImagePath(pid); ok && path != "" {
			return basename(path)
		}
		if snap := c.querier.Snapshot(); snap != nil {
			if name, ok := snap[pid]; ok && name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("[PID:%d]", pid)
}

// basename returns the final path component, accepting both '\' and '/'
// separators since the reference OS queries return Windows-style paths.
func basename(path string) string {
	last := 0
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '\\' || path[i] == '/' {
			last = i + 1
			break
		}
	}
	return path[last:]
}
