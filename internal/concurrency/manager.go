// Package concurrency provides non-blocking per-key locks.
package concurrency

import (
	"errors"
	"sync"
)

// ErrBusy is returned by Guard when the key is already held.
var ErrBusy = errors.New("another operation holds this key")

// Manager hands out one lock per key, such as a wiki cache key.
type Manager struct {
	locks sync.Map // map[string]chan struct{}
}

// NewManager creates a new lock manager
func NewManager() *Manager {
	return &Manager{}
}

// TryAcquire takes the lock for key without waiting. It reports false when
// the lock is already held.
func (m *Manager) TryAcquire(key string) bool {
	// buffered channel of size 1 as a semaphore
	actual, _ := m.locks.LoadOrStore(key, make(chan struct{}, 1))
	ch := actual.(chan struct{})

	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock for key. Releasing a free lock is a no-op.
func (m *Manager) Release(key string) {
	if actual, ok := m.locks.Load(key); ok {
		select {
		case <-actual.(chan struct{}):
		default:
		}
	}
}

// Guard runs fn while holding key, or returns ErrBusy without running it.
func (m *Manager) Guard(key string, fn func() error) error {
	if !m.TryAcquire(key) {
		return ErrBusy
	}
	defer m.Release(key)
	return fn()
}
