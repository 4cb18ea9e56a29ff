// Package lock serializes clustering runs per owner.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be obtained before the context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out per-owner exclusive locks.
type Locker interface {
	// Lock blocks until the owner's lock is held or ctx is done.
	// The returned function releases the lock and is safe to call more than once.
	Lock(ctx context.Context, ownerID int64) (func(), error)
}

// LocalLocker serializes runs inside a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[int64]chan struct{})}
}

func (l *LocalLocker) slot(ownerID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[ownerID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[ownerID] = ch
	}
	return ch
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, ownerID int64) (func(), error) {
	ch := l.slot(ownerID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
