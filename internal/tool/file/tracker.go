package file

import (
	"sync"

	"github.com/Cyclone1070/coda/internal/tool/fsutil"
)

// ReadTracker records every file read during the process lifetime,
// together with the checksum of the content last seen. Paths are never
// removed. It is safe for concurrent use.
type ReadTracker struct {
	mu        sync.RWMutex
	checksums map[string]string
}

// NewReadTracker creates an empty tracker.
func NewReadTracker() *ReadTracker {
	return &ReadTracker{checksums: make(map[string]string)}
}

// MarkRead records that abs was read with the given full content.
func (t *ReadTracker) MarkRead(abs string, content []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checksums[abs] = fsutil.Checksum(content)
}

// HasRead reports whether abs was ever read.
func (t *ReadTracker) HasRead(abs string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.checksums[abs]
	return ok
}

// Matches reports whether content is what the tracker last saw for abs.
func (t *ReadTracker) Matches(abs string, content []byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sum, ok := t.checksums[abs]
	return ok && sum == fsutil.Checksum(content)
}

// Refresh updates the checksum of a tracked path after the tools changed it.
// Untracked paths stay untracked.
func (t *ReadTracker) Refresh(abs string, content []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.checksums[abs]; ok {
		t.checksums[abs] = fsutil.Checksum(content)
	}
}

// Len returns the number of tracked paths.
func (t *ReadTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.checksums)
}
