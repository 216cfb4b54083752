package harness

import (
	"fmt"
	"os"
	"sync"
)

// EphemeralHome is a throwaway home directory owned by exactly one
// session. It exists so backend plugins and config can be injected
// without touching the real home, and is removed exactly once on every
// exit path.
type EphemeralHome struct {
	path    string
	once    sync.Once
	removed bool
}

// NewEphemeralHome creates the directory and invokes populate (when
// non-nil) inside it. If populate fails the directory is removed before
// the error is returned, so a half-built home never leaks.
func NewEphemeralHome(populate func(dir string) error) (*EphemeralHome, error) {
	dir, err := os.MkdirTemp("", "cairn-home-")
	if err != nil {
		return nil, fmt.Errorf("create ephemeral home: %w", err)
	}
	h := &EphemeralHome{path: dir}
	if populate != nil {
		if err := populate(dir); err != nil {
			h.Remove()
			return nil, fmt.Errorf("populate ephemeral home: %w", err)
		}
	}
	return h, nil
}

// Path returns the directory path. Empty after removal.
func (h *EphemeralHome) Path() string {
	if h.removed {
		return ""
	}
	return h.path
}

// Remove deletes the directory. Idempotent and safe from defer.
func (h *EphemeralHome) Remove() {
	h.once.Do(func() {
		_ = os.RemoveAll(h.path)
		h.removed = true
	})
}
