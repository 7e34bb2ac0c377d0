// Package guard provides run guards: non-blocking single-flight gates that
// reject a second concurrent run of the same operation instead of queueing it.
package guard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrAlreadyRunning is returned when a guard is already held.
var ErrAlreadyRunning = errors.New("already running")

// Guard is a non-blocking exclusive gate.
type Guard interface {
	// TryAcquire takes the guard without blocking. It returns false if the
	// guard is already held.
	TryAcquire() bool

	// Release frees the guard. Releasing a free guard is a no-op.
	Release()

	// IsHeld reports whether the guard is currently held.
	IsHeld() bool
}

// Acquire takes g or returns an error wrapping ErrAlreadyRunning naming the operation.
func Acquire(g Guard, operation string) error {
	if !g.TryAcquire() {
		return fmt.Errorf("%s: %w", operation, ErrAlreadyRunning)
	}
	return nil
}

// processGuard guards an operation within one process.
type processGuard struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

// New creates an in-process Guard.
func New() Guard {
	return &processGuard{sem: semaphore.NewWeighted(1)}
}

func (g *processGuard) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.held.Store(true)
	return true
}

func (g *processGuard) Release() {
	if g.held.CompareAndSwap(true, false) {
		g.sem.Release(1)
	}
}

func (g *processGuard) IsHeld() bool {
	return g.held.Load()
}

// multiGuard holds several guards as one, acquiring them in order.
type multiGuard struct {
	guards []Guard
}

// Multi combines guards. TryAcquire succeeds only if every guard is taken;
// on failure the already taken ones are released.
func Multi(guards ...Guard) Guard {
	return &multiGuard{guards: guards}
}

func (m *multiGuard) TryAcquire() bool {
	for i, g := range m.guards {
		if !g.TryAcquire() {
			for j := i - 1; j >= 0; j-- {
				m.guards[j].Release()
			}
			return false
		}
	}
	return true
}

func (m *multiGuard) Release() {
	for i := len(m.guards) - 1; i >= 0; i-- {
		m.guards[i].Release()
	}
}

func (m *multiGuard) IsHeld() bool {
	for _, g := range m.guards {
		if g.IsHeld() {
			return true
		}
	}
	return false
}
