package models

import (
	"time"
)

// RobotType identifies the device family a robot belongs to. The
// protocol registry maps each family to its wire protocol metadata.
type RobotType string

const (
	RobotTypeUnitreeG1      RobotType = "unitree_g1"
	RobotTypeBostonDynamics RobotType = "boston_dynamics"
	RobotTypeTeslaBot       RobotType = "tesla_bot"
	RobotTypeCustom         RobotType = "custom"
)

// KnownRobotTypes lists every device family in probe order.
func KnownRobotTypes() []RobotType {
	return []RobotType{
		RobotTypeUnitreeG1,
		RobotTypeBostonDynamics,
		RobotTypeTeslaBot,
		RobotTypeCustom,
	}
}

// RobotConnection represents a discovered or connected robot endpoint.
type RobotConnection struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          RobotType              `json:"type"`
	Host          string                 `json:"host"`
	Port          int                    `json:"port"`
	IsConnected   bool                   `json:"is_connected"`
	FirstSeen     time.Time              `json:"first_seen"`
	LastSeen      time.Time              `json:"last_seen"`
	SignalQuality float64                `json:"signal_quality"` // 0-1 scale
	BatteryLevel  float64                `json:"battery_level"`  // 0-1 scale
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Address returns the host:port endpoint string.
func (r *RobotConnection) Address() string {
	return joinHostPort(r.Host, r.Port)
}

// RobotState is the last state snapshot reported by a connected robot
// via a state_update message.
type RobotState struct {
	Position        Vector3    `json:"position"`
	Rotation        Quaternion `json:"rotation"`
	JointPositions  []float64  `json:"joint_positions"`
	JointVelocities []float64  `json:"joint_velocities,omitempty"`
	BatteryLevel    float64    `json:"battery_level"`
	ErrorState      bool       `json:"error_state"`
	CurrentTask     string     `json:"current_task,omitempty"`
	Quality         float64    `json:"connection_quality"`
	Timestamp       time.Time  `json:"timestamp"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}
