package guard

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// fileGuard guards an operation across processes sharing a data directory.
// The OS releases the lock if the holder process dies.
type fileGuard struct {
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileGuard creates a Guard backed by an exclusive lock on path.
// The parent directory is created if needed.
func NewFileGuard(path string) (Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &fileGuard{lock: flock.New(path)}, nil
}

func (g *fileGuard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lock.Locked() {
		return false
	}
	locked, err := g.lock.TryLock()
	if err != nil {
		slog.Warn("Failed to take lock file", "path", g.lock.Path(), "error", err)
		return false
	}
	return locked
}

func (g *fileGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lock.Locked() {
		return
	}
	if err := g.lock.Unlock(); err != nil {
		slog.Warn("Failed to release lock file", "path", g.lock.Path(), "error", err)
	}
}

func (g *fileGuard) IsHeld() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lock.Locked()
}
