package models

import (
	"time"

	"github.com/google/uuid"
)

// CommandType enumerates the high-level intents a caller can submit.
type CommandType string

const (
	CommandMove          CommandType = "move"
	CommandRotate        CommandType = "rotate"
	CommandPick          CommandType = "pick"
	CommandPlace         CommandType = "place"
	CommandOpen          CommandType = "open"
	CommandClose         CommandType = "close"
	CommandNavigate      CommandType = "navigate"
	CommandCustom        CommandType = "custom"
	CommandEmergencyStop CommandType = "emergency_stop"
)

// CommandPriority orders commands within a device queue. Emergency
// priority clears the queue and preempts normal processing.
type CommandPriority string

const (
	PriorityLow       CommandPriority = "low"
	PriorityNormal    CommandPriority = "normal"
	PriorityHigh      CommandPriority = "high"
	PriorityEmergency CommandPriority = "emergency"
)

// RobotCommand is a single queued unit of work for one device. The
// retry counter is owned by the queue runner; callers leave it zero.
type RobotCommand struct {
	ID         string                 `json:"id"`
	Type       CommandType            `json:"type"`
	Parameters map[string]interface{} `json:"parameters"`
	Timestamp  time.Time              `json:"timestamp"`
	Priority   CommandPriority        `json:"priority"`
	Retries    int                    `json:"retries"`
}

// NewCommand builds a command with a fresh id and normal priority.
func NewCommand(cmdType CommandType, params map[string]interface{}) *RobotCommand {
	return &RobotCommand{
		ID:         uuid.New().String(),
		Type:       cmdType,
		Parameters: params,
		Timestamp:  time.Now(),
		Priority:   PriorityNormal,
	}
}

// NewEmergencyStop builds the preempting stop command.
func NewEmergencyStop() *RobotCommand {
	cmd := NewCommand(CommandEmergencyStop, map[string]interface{}{})
	cmd.Priority = PriorityEmergency

	return cmd
}
