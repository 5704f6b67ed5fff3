package models

import (
	"time"
)

// Wire message type tags. Outbound and inbound messages share the
// top-level "type" discriminator.
const (
	MessageTypeHandshake    = "handshake"
	MessageTypeAuthenticate = "authenticate"
	MessageTypeAuthResponse = "auth_response"
	MessageTypeCommand      = "command"
	MessageTypeHeartbeat    = "heartbeat"

	MessageTypeStateUpdate      = "state_update"
	MessageTypeCommandResponse  = "command_response"
	MessageTypeError            = "error"
	MessageTypeWarning          = "warning"
	MessageTypeTelemetry        = "telemetry"
	MessageTypeCapabilityUpdate = "capability_update"
)

// HandshakeMessage is sent immediately after the session opens.
type HandshakeMessage struct {
	Type                  string    `json:"type"`
	RobotType             RobotType `json:"robotType"`
	ClientID              string    `json:"clientId"`
	ProtocolVersion       string    `json:"protocolVersion"`
	RequestedCapabilities []string  `json:"requestedCapabilities"`
	Timestamp             time.Time `json:"timestamp"`
}

// AuthRequest carries the challenge/response credentials for vendors
// whose protocol descriptor requires authentication.
type AuthRequest struct {
	Type        string          `json:"type"`
	Credentials AuthCredentials `json:"credentials"`
}

type AuthCredentials struct {
	APIKey   string `json:"apiKey"`
	ClientID string `json:"clientId"`
}

// CommandEnvelope wraps a vendor-translated command for the wire.
type CommandEnvelope struct {
	Type      string      `json:"type"`
	Command   WireCommand `json:"command"`
	Timestamp time.Time   `json:"timestamp"`
}

// WireCommand is the vendor-facing form of a RobotCommand: the type
// string has already been through protocol translation.
type WireCommand struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters"`
	Timestamp  time.Time              `json:"timestamp"`
	Priority   CommandPriority        `json:"priority"`
}

// HeartbeatMessage is the periodic keep-alive.
type HeartbeatMessage struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is the decoded form of anything the robot sends us.
// Fields are populated depending on Type; unknown types are logged and
// dropped by the dispatcher.
type InboundMessage struct {
	Type         string           `json:"type"`
	CommandID    string           `json:"commandId,omitempty"`
	Success      bool             `json:"success,omitempty"`
	Error        string           `json:"error,omitempty"`
	Message      string           `json:"message,omitempty"`
	State        *RobotState      `json:"state,omitempty"`
	Telemetry    *TelemetrySample `json:"telemetry,omitempty"`
	Capabilities []string         `json:"capabilities,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}
