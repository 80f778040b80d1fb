package healthmonitor

import (
	"time"

	"github.com/earn9/autopsy/internal/errors"
)

// TimingMetric measures how long a section of code takes. Obtain one
// from Monitor.GetTimingMetric before the timed work and hand it to
// Monitor.SubmitTimingMetric immediately after; the duration resolves
// at submission. A metric belongs to its caller until submitted and
// must not be reused afterward.
type TimingMetric struct {
	name     string
	start    time.Time
	duration time.Duration
	stopped  bool
}

// NewTimingMetric starts a timing measurement under the given name.
func NewTimingMetric(name string) (*TimingMetric, error) {
	if name == "" {
		return nil, errors.New().New(ErrInvalidMetricName)
	}

	return &TimingMetric{
		name:  name,
		start: time.Now(),
	}, nil
}

// Name returns the metric name, as it will appear in timing_data.
func (m *TimingMetric) Name() string {
	return m.name
}

// stopTiming resolves the duration. The first call wins; submitting a
// metric twice merges the same resolved duration again rather than
// re-stamping it.
func (m *TimingMetric) stopTiming() {
	if m.stopped {
		return
	}
	m.duration = time.Since(m.start)
	m.stopped = true
}
