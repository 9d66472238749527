package pipeline

import (
	"context"
	"sync"
)

// keyedLock serializes work per source identity while leaving unrelated
// keys fully parallel. Lock entries are reference-counted and removed when
// the last holder releases, so the map does not grow with history.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	refs int
	sem  chan struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*keyEntry)}
}

// Acquire blocks until the key's lock is held or ctx is done. The returned
// release function must be called on every exit path.
func (k *keyedLock) Acquire(ctx context.Context, key string) (release func(), err error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			k.unref(key, entry)
		})
	}, nil
}

func (k *keyedLock) unref(key string, entry *keyEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
