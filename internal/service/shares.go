package service

import "sync"

// maxShareRecords caps how many rows one counter jump may produce; a
// device that was offline for hours would otherwise flood the log on
// its first poll back.
const maxShareRecords = 10

// ShareTracker turns cumulative accepted-share counters into per-poll
// deltas. Devices report lifetime totals; the tracker remembers the last
// seen total per device and reports how many new shares to record.
type ShareTracker struct {
	mu   sync.Mutex
	last map[int64]int64
}

func NewShareTracker() *ShareTracker {
	return &ShareTracker{last: make(map[int64]int64)}
}

// Advance observes a counter reading for a device and returns how many
// share records to write, capped at maxShareRecords. The baseline always
// advances to the full reading, so a capped jump is not re-reported. A
// counter that went backwards (firmware restart) rebases silently and
// yields nothing.
func (t *ShareTracker) Advance(minerID, count int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.last[minerID]
	t.last[minerID] = count

	delta := count - prev
	if delta <= 0 {
		return 0
	}
	if delta > maxShareRecords {
		return maxShareRecords
	}
	return int(delta)
}

// Forget drops a device's baseline, e.g. after it is deleted.
func (t *ShareTracker) Forget(minerID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, minerID)
}
