package models

import (
	"time"
)

const (
	defaultMaxRetries        = 3
	defaultRetryDelay        = 2 * time.Second
	defaultConnectTimeout    = 10 * time.Second
	defaultCommandTimeout    = 30 * time.Second
	defaultAuthTimeout       = 10 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultTelemetryInterval = 1 * time.Second
	defaultTelemetryHistory  = 1000
)

// ConnectionConfig is the per-device connection policy. Zero-valued
// fields inherit defaults at connect time.
type ConnectionConfig struct {
	MaxRetries        int      `json:"max_retries"`
	RetryDelay        Duration `json:"retry_delay"`
	ConnectTimeout    Duration `json:"connect_timeout"`
	CommandTimeout    Duration `json:"command_timeout"`
	AuthTimeout       Duration `json:"auth_timeout"`
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	TelemetryInterval Duration `json:"telemetry_interval"`
	TelemetryHistory  int      `json:"telemetry_history"`
	EnableLogging     bool     `json:"enable_logging"`
}

// DefaultConnectionConfig returns the policy applied when the caller
// passes nil to Connect. The retry delay is fixed, not exponential.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxRetries:        defaultMaxRetries,
		RetryDelay:        Duration(defaultRetryDelay),
		ConnectTimeout:    Duration(defaultConnectTimeout),
		CommandTimeout:    Duration(defaultCommandTimeout),
		AuthTimeout:       Duration(defaultAuthTimeout),
		HeartbeatInterval: Duration(defaultHeartbeatInterval),
		TelemetryInterval: Duration(defaultTelemetryInterval),
		TelemetryHistory:  defaultTelemetryHistory,
		EnableLogging:     true,
	}
}

// Normalize fills zero-valued fields from the defaults so partial
// overrides keep a usable policy. MaxRetries zero is preserved: it
// means a single attempt with no retries.
func (c *ConnectionConfig) Normalize() {
	d := DefaultConnectionConfig()

	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}

	if c.CommandTimeout == 0 {
		c.CommandTimeout = d.CommandTimeout
	}

	if c.AuthTimeout == 0 {
		c.AuthTimeout = d.AuthTimeout
	}

	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}

	if c.TelemetryInterval == 0 {
		c.TelemetryInterval = d.TelemetryInterval
	}

	if c.TelemetryHistory == 0 {
		c.TelemetryHistory = d.TelemetryHistory
	}
}
