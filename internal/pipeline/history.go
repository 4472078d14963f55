package pipeline

import (
	"sync"
	"time"

	"github.com/banshee-data/pressure.report/internal/geometry"
)

// Entry is one observed needle position.
type Entry struct {
	Timestamp time.Time
	Angle     float64
}

// History tracks the most recent reading so each new one can be compared to
// its predecessor. It is safe for concurrent use by batch workers.
type History struct {
	mu   sync.Mutex
	last *Entry
}

// Seed initializes the history from the most recent stored reading, so the
// first image of a batch is compared against prior runs.
func (h *History) Seed(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &e
}

// Observe records a reading and returns the angular change from the
// previous one. The change is the smallest signed arc, so a swing from 350
// to 10 degrees reads as +20, not -340. ratePerMin is change per minute of
// elapsed time (0 when the timestamps coincide). ok is false for the first
// observation.
func (h *History) Observe(e Entry) (change, ratePerMin float64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.last
	h.last = &e
	if prev == nil {
		return 0, 0, false
	}

	change = geometry.SmallestChange(prev.Angle, e.Angle)
	if minutes := e.Timestamp.Sub(prev.Timestamp).Minutes(); minutes > 0 {
		ratePerMin = change / minutes
	}
	return change, ratePerMin, true
}

// Last returns the most recent entry, if any.
func (h *History) Last() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Entry{}, false
	}
	return *h.last, true
}
