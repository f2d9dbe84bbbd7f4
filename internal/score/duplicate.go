package score

import (
	"sync"

	"github.com/iamwavecut/guardbot/internal/db"
)

// compareDepth is how many of the most recent prior messages a new
// message is checked against.
const compareDepth = 2

// historyStore keeps a size-bounded ring of recent message texts per
// key for near-duplicate detection. Oldest entries are evicted on
// overflow; unbounded growth is not allowed.
type historyStore struct {
	mu    sync.Mutex
	byKey map[db.UserKey][]string
	depth int
}

func newHistoryStore(depth int) *historyStore {
	if depth < 1 {
		depth = 1
	}
	return &historyStore{
		byKey: make(map[db.UserKey][]string),
		depth: depth,
	}
}

// Observe compares text against the most recent prior messages for the
// key, appends it to the history, and returns the highest pairwise
// similarity seen.
func (h *historyStore) Observe(key db.UserKey, text string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	history := h.byKey[key]
	var highest float64
	from := len(history) - compareDepth
	if from < 0 {
		from = 0
	}
	for _, prior := range history[from:] {
		if similarity := sequenceSimilarity(text, prior); similarity > highest {
			highest = similarity
		}
	}

	history = append(history, text)
	if len(history) > h.depth {
		history = history[len(history)-h.depth:]
	}
	h.byKey[key] = history

	return highest
}

func (h *historyStore) Reset(key db.UserKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byKey, key)
}
