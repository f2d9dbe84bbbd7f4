package engine

import (
	"sync"
	"testing"

	"github.com/iamwavecut/guardbot/internal/db"
)

func TestKeyLocksSerializePerKey(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()
	key := db.UserKey{ChatID: -1, UserID: 1}

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(key)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 64 {
		t.Fatalf("lost increments under lock: %d", counter)
	}
}

func TestKeyLocksReleaseEntries(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()
	keys := []db.UserKey{
		{ChatID: -1, UserID: 1},
		{ChatID: -1, UserID: 2},
		{ChatID: -2, UserID: 1},
	}
	for _, key := range keys {
		unlock := locks.Lock(key)
		unlock()
	}

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("stale lock entries remain: %d", len(locks.locks))
	}
}
