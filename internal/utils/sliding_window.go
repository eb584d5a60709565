package utils

import "time"

// SlidingWindow keeps the timestamps younger than a fixed horizon. It is not
// safe for concurrent use; the owning bucket serializes access.
type SlidingWindow struct {
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

// Add records now and evicts every entry at or beyond the horizon relative to now.
func (w *SlidingWindow) Add(now time.Time) int {
	w.hits = append(w.hits, now)
	w.evict(now)
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.evict(now)
	return len(w.hits)
}

func (w *SlidingWindow) Len() int {
	return len(w.hits)
}

func (w *SlidingWindow) Reset() {
	clear(w.hits)
	w.hits = w.hits[:0]
}

// evict filters the whole slice instead of trimming a prefix, so a late
// timestamp sitting behind newer ones still ages out.
func (w *SlidingWindow) evict(now time.Time) {
	kept := w.hits[:0]
	for _, hit := range w.hits {
		if now.Sub(hit) < w.window {
			kept = append(kept, hit)
		}
	}
	clear(w.hits[len(kept):])
	w.hits = kept
}
