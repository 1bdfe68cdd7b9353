package memory

import (
	"context"
	"sync"
)

// keyedLocks hands out one single-holder lock per key. Waiting honours context cancellation.
// An entry lives only while some transaction holds or waits for its key.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]*keyedLock)}
}

// join registers interest in key and returns its lock.
func (l *keyedLocks) join(key string) *keyedLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.slots[key]
	if !ok {
		lock = &keyedLock{ch: make(chan struct{}, 1)}
		l.slots[key] = lock
	}
	lock.refs++
	return lock
}

// leave drops interest in key, removing the entry once nobody holds or waits for it.
func (l *keyedLocks) leave(key string, lock *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *keyedLocks) acquire(ctx context.Context, key string) error {
	lock := l.join(key)
	select {
	case lock.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.leave(key, lock)
		return ctx.Err()
	}
}

func (l *keyedLocks) release(key string) {
	l.mu.Lock()
	lock, ok := l.slots[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-lock.ch:
	default:
	}
	l.leave(key, lock)
}

func (l *keyedLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
