package flood

import (
	"sync"
	"time"

	"github.com/iamwavecut/guardbot/internal/db"
)

const gcInterval = 5 * time.Minute

// Window tracks message timestamps per key inside a rolling time span.
// Operations on the same key are serialized by a per-key series lock;
// different keys never block each other beyond the map lookup.
type Window struct {
	mu     sync.RWMutex
	series map[db.UserKey]*series
	lastGC time.Time

	now func() time.Time
}

type series struct {
	mu         sync.Mutex
	timestamps []time.Time
	touchedAt  time.Time
}

func NewWindow() *Window {
	return &Window{
		series: make(map[db.UserKey]*series),
		lastGC: time.Now(),
		now:    time.Now,
	}
}

func (w *Window) Record(key db.UserKey, ts time.Time) {
	s := w.acquire(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps = append(s.timestamps, ts)
	s.touchedAt = w.now()
}

// Count returns the number of timestamps within span of now, dropping
// older entries as a side effect.
func (w *Window) Count(key db.UserKey, span time.Duration) int {
	s := w.acquire(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(w.now().Add(-span))
	return len(s.timestamps)
}

// Sample records ts and returns the in-window count in one critical
// section, so a concurrent sample on the same key cannot be lost or
// counted twice.
func (w *Window) Sample(key db.UserKey, ts time.Time, span time.Duration) int {
	s := w.acquire(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps = append(s.timestamps, ts)
	s.touchedAt = w.now()
	s.purge(w.now().Add(-span))
	return len(s.timestamps)
}

func (w *Window) Reset(key db.UserKey) {
	s := w.acquire(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps = s.timestamps[:0]
	s.touchedAt = w.now()
}

func (w *Window) acquire(key db.UserKey) *series {
	w.mu.RLock()
	s, ok := w.series[key]
	w.mu.RUnlock()
	if ok {
		return s
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok = w.series[key]; !ok {
		s = &series{touchedAt: w.now()}
		w.series[key] = s
	}
	w.maybeGC()
	return s
}

// maybeGC drops series untouched for longer than gcInterval. Caller
// holds the map write lock.
func (w *Window) maybeGC() {
	now := w.now()
	if now.Sub(w.lastGC) < gcInterval {
		return
	}
	w.lastGC = now
	for key, s := range w.series {
		s.mu.Lock()
		stale := now.Sub(s.touchedAt) >= gcInterval
		s.mu.Unlock()
		if stale {
			delete(w.series, key)
		}
	}
}

// purge drops timestamps at or before cutoff. Caller holds the series lock.
func (s *series) purge(cutoff time.Time) {
	kept := s.timestamps[:0]
	for _, ts := range s.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.timestamps = kept
}
