package notify

import (
	"sync"
	"time"
)

// limiter is a sliding-window counter for inbound frames on one socket.
type limiter struct {
	mu     sync.Mutex
	hits   []time.Time
	limit  int
	window time.Duration
}

func newLimiter(limit int, window time.Duration) *limiter {
	return &limiter{hits: make([]time.Time, 0, limit), limit: limit, window: window}
}

func (l *limiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.window)
	kept := l.hits[:0]
	for _, t := range l.hits {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	l.hits = kept
	if len(l.hits) >= l.limit {
		return false
	}
	l.hits = append(l.hits, now)
	return true
}
