package healthmonitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingInfoAggregation(t *testing.T) {
	agg := newAggregator()

	for _, d := range []time.Duration{10, 20, 30} {
		agg.record("scan", d)
	}

	snapshot := agg.snapshot()
	require.Len(t, snapshot, 1)

	info := snapshot["scan"]
	require.NotNil(t, info)
	assert.Equal(t, int64(3), info.count)
	assert.Equal(t, time.Duration(60), info.sum)
	assert.Equal(t, time.Duration(30), info.max)
	assert.Equal(t, time.Duration(10), info.min)
	assert.Equal(t, time.Duration(20), info.average())
}

func TestAggregatorSeparateNames(t *testing.T) {
	agg := newAggregator()

	agg.record("scan", 5)
	agg.record("index", 7)
	agg.record("scan", 15)

	snapshot := agg.snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, int64(2), snapshot["scan"].count)
	assert.Equal(t, int64(1), snapshot["index"].count)
}

func TestAggregatorAverageIntegerDivision(t *testing.T) {
	agg := newAggregator()

	agg.record("scan", 10)
	agg.record("scan", 11)

	info := agg.snapshot()["scan"]
	require.NotNil(t, info)
	assert.Equal(t, time.Duration(10), info.average())
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	const (
		goroutines = 16
		perRoutine = 500
	)

	agg := newAggregator()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perRoutine; i++ {
				agg.record("scan", time.Nanosecond)
			}
		}()
	}
	wg.Wait()

	info := agg.snapshot()["scan"]
	require.NotNil(t, info)
	assert.Equal(t, int64(goroutines*perRoutine), info.count)
	assert.Equal(t, time.Duration(goroutines*perRoutine), info.sum)
	assert.Equal(t, time.Nanosecond, info.max)
	assert.Equal(t, time.Nanosecond, info.min)
}

func TestAggregatorInvariant(t *testing.T) {
	agg := newAggregator()

	durations := []time.Duration{42, 7, 999, 1, 512, 64, 128}
	for _, d := range durations {
		agg.record("scan", d)

		// min <= average <= max must hold after every merge
		agg.mu.Lock()
		info := agg.timings["scan"]
		assert.LessOrEqual(t, info.min, info.average())
		assert.LessOrEqual(t, info.average(), info.max)
		agg.mu.Unlock()
	}
}

func TestSnapshotSwapsLiveMap(t *testing.T) {
	agg := newAggregator()
	agg.record("scan", 10)

	first := agg.snapshot()
	require.Len(t, first, 1)

	// Metrics recorded after the swap belong to the next snapshot
	agg.record("scan", 20)
	second := agg.snapshot()
	require.Len(t, second, 1)
	assert.Equal(t, int64(1), second["scan"].count)
	assert.Equal(t, time.Duration(20), second["scan"].sum)

	// The swapped-out map is untouched by later records
	assert.Equal(t, time.Duration(10), first["scan"].sum)

	assert.Empty(t, agg.snapshot())
}

func TestClearDiscardsAggregates(t *testing.T) {
	agg := newAggregator()
	agg.record("scan", 10)
	agg.record("index", 20)

	agg.clear()

	assert.Empty(t, agg.snapshot())
}
