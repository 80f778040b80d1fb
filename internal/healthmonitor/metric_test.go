package healthmonitor

import (
	"testing"
	"time"

	"github.com/earn9/autopsy/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimingMetric(t *testing.T) {
	metric, err := NewTimingMetric("scan")
	require.NoError(t, err)
	assert.Equal(t, "scan", metric.Name())
	assert.False(t, metric.start.IsZero())
}

func TestNewTimingMetricEmptyName(t *testing.T) {
	metric, err := NewTimingMetric("")
	require.Error(t, err)
	assert.Nil(t, metric)
	assert.Equal(t, ErrInvalidMetricName, errors.CodeOf(err))
}

func TestStopTimingResolvesDurationOnce(t *testing.T) {
	metric, err := NewTimingMetric("scan")
	require.NoError(t, err)

	metric.stopTiming()
	first := metric.duration
	assert.Greater(t, first, time.Duration(0))

	time.Sleep(time.Millisecond)
	metric.stopTiming()
	assert.Equal(t, first, metric.duration)
}
