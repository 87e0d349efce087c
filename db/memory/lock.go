package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Altmerian/jackpot/errors"
)

// keyedLock hands out one exclusive lock per key. Entries are reference
// counted and dropped when nobody holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

// Lock waits up to timeout for the key. The returned function releases it
// and must be called exactly once.
func (k *keyedLock) Lock(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	e := k.acquire(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.release(key, e)
			})
		}, nil
	case <-timer.C:
		k.release(key, e)
		return nil, errors.Newf(errors.ErrLockTimeout, "timed out after %s waiting for jackpot %s", timeout, key)
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	return e
}

func (k *keyedLock) release(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
