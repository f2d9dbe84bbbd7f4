package engine

import (
	"sync"

	"github.com/iamwavecut/guardbot/internal/db"
)

// keyLocks serializes the score → decide → persist path per UserKey.
// Different keys proceed fully in parallel; entries are refcounted so
// the map does not grow with every key ever seen.
type keyLocks struct {
	mu    sync.Mutex
	locks map[db.UserKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[db.UserKey]*keyLock)}
}

// Lock acquires the per-key critical section and returns its release
// function.
func (kl *keyLocks) Lock(key db.UserKey) func() {
	kl.mu.Lock()
	lock, ok := kl.locks[key]
	if !ok {
		lock = &keyLock{}
		kl.locks[key] = lock
	}
	lock.refs++
	kl.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		kl.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(kl.locks, key)
		}
		kl.mu.Unlock()
	}
}
