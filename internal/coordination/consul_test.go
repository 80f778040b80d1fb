package coordination_test

import (
	"testing"

	"github.com/earn9/autopsy/internal/coordination"
	"github.com/earn9/autopsy/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	err := coordination.Config{}.Validate()
	require.Error(t, err)
	assert.Equal(t, coordination.ErrInvalidAddress, errors.CodeOf(err))

	require.NoError(t, coordination.Config{Address: "127.0.0.1:8500"}.Validate())
}

func TestNewServiceRequiresAddress(t *testing.T) {
	_, err := coordination.NewService(coordination.Config{})
	require.Error(t, err)
	assert.Equal(t, coordination.ErrInvalidAddress, errors.CodeOf(err))
}

func TestWriterKeyLayout(t *testing.T) {
	key := coordination.WriterKey("health_monitor", "ServicesHealthMonitor")
	assert.Equal(t, "autopsy/locks/health_monitor/ServicesHealthMonitor/writer", key)
}

func TestReaderPrefixLayout(t *testing.T) {
	prefix := coordination.ReaderPrefix("health_monitor", "ServicesHealthMonitor")
	assert.Equal(t, "autopsy/locks/health_monitor/ServicesHealthMonitor/readers/", prefix)

	// Writer key must never fall under the reader prefix, or the
	// exclusive drain check would see itself
	key := coordination.WriterKey("health_monitor", "ServicesHealthMonitor")
	assert.NotContains(t, key, prefix)
}
