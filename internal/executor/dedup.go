package executor

import (
	"sync"
	"time"
)

// Dedup absorbs the broker's at-least-once settlement delivery: a position
// ID that settles is remembered for a time-to-live window, and redeliveries
// inside that window are recognised as duplicates instead of mismatches.
// It is safe for concurrent use.
type Dedup struct {
	settled map[string]time.Time // position ID -> first settlement time
	ttl     time.Duration
	mu      sync.Mutex
}

// NewDedup creates a Dedup that remembers settled position IDs for ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		settled: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Seen reports whether the position settled within the TTL window.
func (d *Dedup) Seen(positionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	first, ok := d.settled[positionID]
	return ok && time.Since(first) < d.ttl
}

// Mark records a settled position ID. Only successfully applied settlements
// are marked, so a redelivery after a failed apply gets another attempt.
func (d *Dedup) Mark(positionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settled[positionID] = time.Now()
}

// Cleanup removes entries older than the TTL. Called periodically from the
// coordinator loop to keep the map bounded.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.settled {
		if now.Sub(ts) >= d.ttl {
			delete(d.settled, id)
		}
	}
}
