package registry

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Loader reads the registry snapshot from disk and caches it for a TTL. The
// cache holds an immutable snapshot swapped atomically by a single writer;
// readers receive deep copies so mutation cannot pollute the cache.
type Loader struct {
	path string
	ttl  time.Duration

	mu      sync.Mutex // serializes reloads
	current atomic.Pointer[cachedSnapshot]
}

type cachedSnapshot struct {
	snap     *Snapshot
	loadedAt time.Time
}

// NewLoader creates a loader for the given snapshot path. A non-positive ttl
// disables expiry (reload only via Invalidate).
func NewLoader(path string, ttl time.Duration) *Loader {
	return &Loader{path: path, ttl: ttl}
}

// Snapshot returns a deep copy of the current registry snapshot, reloading
// from disk when the cache is empty or expired. A missing or invalid file
// yields the empty snapshot, never an error.
func (l *Loader) Snapshot() *Snapshot {
	if cached := l.current.Load(); cached != nil && !l.expired(cached) {
		return cached.snap.Clone()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another goroutine may have reloaded while we waited.
	if cached := l.current.Load(); cached != nil && !l.expired(cached) {
		return cached.snap.Clone()
	}

	snap := readSnapshotFile(l.path)
	l.current.Store(&cachedSnapshot{snap: snap, loadedAt: time.Now()})
	return snap.Clone()
}

// Invalidate drops the cached snapshot so the next Snapshot call re-reads
// the file. Used by tests and by the quote depth cache on rebuild.
func (l *Loader) Invalidate() {
	l.current.Store(nil)
}

func (l *Loader) expired(cached *cachedSnapshot) bool {
	if l.ttl <= 0 {
		return false
	}
	return time.Since(cached.loadedAt) >= l.ttl
}

// readSnapshotFile parses the snapshot, degrading to the empty snapshot on
// any read or decode failure.
func readSnapshotFile(path string) *Snapshot {
	raw, err := os.ReadFile(path)
	if err != nil {
		return EmptySnapshot()
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return EmptySnapshot()
	}
	if snap.Chains == nil {
		snap.Chains = []Chain{}
	}
	return &snap
}
