package models

import (
	"time"
)

// EventType names a notification delivered through the event bus.
type EventType string

const (
	EventConnected        EventType = "connected"
	EventDisconnected     EventType = "disconnected"
	EventCommandQueued    EventType = "command_queued"
	EventCommandCompleted EventType = "command_completed"
	EventCommandFailed    EventType = "command_failed"
	EventCommandDropped   EventType = "command_dropped"
	EventEmergencyStop    EventType = "emergency_stop"
	EventTelemetry        EventType = "telemetry"
	EventStateUpdate      EventType = "state_update"
	EventWarning          EventType = "warning"
	EventError            EventType = "error"
)

// Event is the unit of notification: ephemeral, dispatched
// synchronously to subscribers, never persisted.
type Event struct {
	DeviceID  string      `json:"device_id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Typed event payloads. Subscribers assert on these rather than on
// free-form maps.

type ConnectedPayload struct {
	Device *RobotConnection `json:"device"`
}

type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

type CommandResultPayload struct {
	Command *RobotCommand `json:"command"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
}

type TelemetryPayload struct {
	Sample *TelemetrySample `json:"sample"`
}

type StateUpdatePayload struct {
	State *RobotState `json:"state"`
}

type DiagnosticPayload struct {
	Message string `json:"message"`
}
