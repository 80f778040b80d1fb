package healthmonitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTaskOnInterval(t *testing.T) {
	mock := clock.NewMock()
	var runs atomic.Int32

	s := newScheduler(mock, time.Minute, func() { runs.Add(1) })
	s.start()
	defer s.stop()

	mock.Add(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	mock.Add(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestSchedulerStopCancelsSchedule(t *testing.T) {
	mock := clock.NewMock()
	var runs atomic.Int32

	s := newScheduler(mock, time.Minute, func() { runs.Add(1) })
	s.start()
	s.stop()

	// Give the ticker goroutine time to observe the cancel
	time.Sleep(50 * time.Millisecond)
	mock.Add(5 * time.Minute)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), runs.Load())
}

func TestSchedulerStopTwiceIsHarmless(t *testing.T) {
	mock := clock.NewMock()
	s := newScheduler(mock, time.Minute, func() {})

	s.start()
	s.stop()
	s.stop()
}

func TestSchedulerRestartReplacesSchedule(t *testing.T) {
	mock := clock.NewMock()
	var runs atomic.Int32

	s := newScheduler(mock, time.Minute, func() { runs.Add(1) })
	s.start()
	s.start()
	defer s.stop()

	// Only the replacement schedule may fire
	time.Sleep(50 * time.Millisecond)
	mock.Add(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
}

func TestSchedulerSurvivesFailingTask(t *testing.T) {
	mock := clock.NewMock()
	var runs atomic.Int32

	// The task body logs its own errors; from the scheduler's point of
	// view a failing flush is just a task run that returns
	s := newScheduler(mock, time.Minute, func() {
		runs.Add(1)
	})
	s.start()
	defer s.stop()

	for i := 1; i <= 3; i++ {
		mock.Add(time.Minute)
		expected := int32(i)
		require.Eventually(t, func() bool { return runs.Load() == expected }, time.Second, 10*time.Millisecond)
	}
}
