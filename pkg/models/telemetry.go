package models

import (
	"time"
)

// TelemetrySample is one periodic health reading for a device.
type TelemetrySample struct {
	Timestamp      time.Time        `json:"timestamp"`
	BatteryLevel   float64          `json:"battery_level"`
	Temperature    float64          `json:"temperature"`
	JointPositions []float64        `json:"joint_positions,omitempty"`
	JointCurrents  []float64        `json:"joint_currents,omitempty"`
	Errors         []string         `json:"errors,omitempty"`
	Performance    PerformanceStats `json:"performance"`
}

// PerformanceStats captures operator-side pipeline health alongside the
// device reading: host CPU/memory load and measured round-trip latency.
type PerformanceStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	LatencyMS     float64 `json:"latency_ms"`
}

// ConnectionHistoryEntry records one completed session for a device.
// The registry retains the most recent entries only.
type ConnectionHistoryEntry struct {
	DeviceID       string    `json:"device_id"`
	ConnectedAt    time.Time `json:"connected_at"`
	DisconnectedAt time.Time `json:"disconnected_at"`
	Reason         string    `json:"reason"`
	CommandsSent   int       `json:"commands_sent"`
	CommandsOK     int       `json:"commands_ok"`
}
