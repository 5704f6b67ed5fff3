package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay.Duration())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout.Duration())
	assert.Equal(t, 10*time.Second, cfg.AuthTimeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval.Duration())
	assert.Equal(t, time.Second, cfg.TelemetryInterval.Duration())
	assert.Equal(t, 1000, cfg.TelemetryHistory)
	assert.True(t, cfg.EnableLogging)
}

func TestNormalizeFillsZeroFields(t *testing.T) {
	cfg := &ConnectionConfig{
		RetryDelay:       Duration(time.Second),
		TelemetryHistory: 50,
	}

	cfg.Normalize()

	assert.Equal(t, time.Second, cfg.RetryDelay.Duration())
	assert.Equal(t, 50, cfg.TelemetryHistory)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval.Duration())
}

func TestNormalizeKeepsZeroMaxRetries(t *testing.T) {
	// Zero retries is a valid policy: one attempt, no retry.
	cfg := &ConnectionConfig{}
	cfg.Normalize()

	assert.Zero(t, cfg.MaxRetries)
}
