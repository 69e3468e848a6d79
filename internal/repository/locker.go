package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLocker is an in-process keyed mutex. Each resource id gets a
// one-slot semaphore that lives only while someone holds or waits for it.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[int64]*lockEntry)}
}

func (l *MemoryLocker) Lock(ctx context.Context, resourceID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[resourceID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[resourceID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(resourceID, e)
		return nil, fmt.Errorf("failed to lock resource %d: %w", resourceID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(resourceID, e)
		})
	}, nil
}

func (l *MemoryLocker) release(resourceID int64, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, resourceID)
	}
}

// held returns the number of resource ids currently tracked.
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
