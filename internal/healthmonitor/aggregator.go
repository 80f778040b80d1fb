package healthmonitor

import (
	"sync"
	"time"
)

// timingInfo is the running aggregate for a single metric name.
// Individual durations are not retained; count and sum are enough to
// compute the average at flush time.
type timingInfo struct {
	count int64
	sum   time.Duration
	max   time.Duration
	min   time.Duration
}

func newTimingInfo(d time.Duration) *timingInfo {
	return &timingInfo{
		count: 1,
		sum:   d,
		max:   d,
		min:   d,
	}
}

// add merges one more duration. Called with the aggregator mutex held,
// so keep it O(1).
func (t *timingInfo) add(d time.Duration) {
	t.count++
	t.sum += d

	if t.max < d {
		t.max = d
	}
	if t.min > d {
		t.min = d
	}
}

func (t *timingInfo) average() time.Duration {
	return t.sum / time.Duration(t.count)
}

// aggregator collects timing aggregates by metric name. Safe for
// concurrent use from any number of submitting goroutines.
type aggregator struct {
	mu      sync.Mutex
	timings map[string]*timingInfo
}

func newAggregator() *aggregator {
	return &aggregator{
		timings: make(map[string]*timingInfo),
	}
}

func (a *aggregator) record(name string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if info, ok := a.timings[name]; ok {
		info.add(d)
		return
	}
	a.timings[name] = newTimingInfo(d)
}

// snapshot swaps the live map for a fresh empty one and returns the old
// map. Metrics recorded after the swap land in the new map, so nothing
// is lost or double counted while a flush is writing the old one.
func (a *aggregator) snapshot() map[string]*timingInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.timings
	a.timings = make(map[string]*timingInfo)

	return out
}

// clear discards all collected aggregates.
func (a *aggregator) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.timings = make(map[string]*timingInfo)
}
