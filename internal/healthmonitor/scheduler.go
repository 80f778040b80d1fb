package healthmonitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// scheduler drives the periodic database writes. It owns at most one
// ticker goroutine at a time: start replaces any running schedule, stop
// cancels without waiting for an in-flight task run. Missed ticks are
// not queued.
type scheduler struct {
	clk      clock.Clock
	interval time.Duration
	task     func()

	mu     sync.Mutex
	cancel chan struct{}
}

func newScheduler(clk clock.Clock, interval time.Duration, task func()) *scheduler {
	return &scheduler{
		clk:      clk,
		interval: interval,
		task:     task,
	}
}

// start begins the periodic schedule, cancelling any previous one
// first. The task is responsible for logging its own failures; a failed
// run never unregisters the schedule.
func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		close(s.cancel)
	}
	s.cancel = make(chan struct{})

	go s.run(s.cancel)
}

// stop cancels the schedule. An in-flight task run completes on its
// own; stop does not block on it.
func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
}

func (s *scheduler) run(cancel chan struct{}) {
	ticker := s.clk.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.task()
		case <-cancel:
			return
		}
	}
}
