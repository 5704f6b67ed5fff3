/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

import (
	"fmt"

	"github.com/carverauto/robotlink/pkg/models"
)

// unitreeG1 speaks the Unitree G1 high-level sport/arm API.
type unitreeG1 struct{}

var _ Translator = unitreeG1{}

func (unitreeG1) Descriptor() Descriptor {
	return Descriptor{
		Name:         "unitree-hl",
		Version:      "2.1",
		Capabilities: []string{"locomotion", "manipulation", "vision"},
		RequiresAuth: false,
		DefaultPort:  8080,
	}
}

func (unitreeG1) TranslateCommand(cmd *models.RobotCommand) (models.WireCommand, error) {
	var vendorType string

	switch cmd.Type {
	case models.CommandMove:
		vendorType = "loco_move"
	case models.CommandRotate:
		vendorType = "loco_rotate"
	case models.CommandNavigate:
		vendorType = "nav_goto"
	case models.CommandPick:
		vendorType = "arm_grasp"
	case models.CommandPlace:
		vendorType = "arm_release"
	case models.CommandOpen:
		vendorType = "hand_open"
	case models.CommandClose:
		vendorType = "hand_close"
	case models.CommandEmergencyStop:
		// Unitree's damp mode: zero torque, joints go limp.
		vendorType = "damp"
	case models.CommandCustom:
		return customTarget(cmd)
	default:
		return models.WireCommand{}, fmt.Errorf("%w: unitree_g1 %s", ErrUnsupportedCommand, cmd.Type)
	}

	return wireCommand(cmd, vendorType), nil
}

// bostonDynamics speaks the Spot-style mobility/manipulation API.
type bostonDynamics struct{}

var _ Translator = bostonDynamics{}

func (bostonDynamics) Descriptor() Descriptor {
	return Descriptor{
		Name:         "bd-api",
		Version:      "4.0",
		Capabilities: []string{"locomotion", "manipulation", "navigation"},
		RequiresAuth: true,
		DefaultPort:  9091,
	}
}

func (bostonDynamics) TranslateCommand(cmd *models.RobotCommand) (models.WireCommand, error) {
	var vendorType string

	switch cmd.Type {
	case models.CommandMove:
		vendorType = "mobility_velocity"
	case models.CommandRotate:
		vendorType = "mobility_turn"
	case models.CommandNavigate:
		vendorType = "graphnav_goto"
	case models.CommandPick:
		vendorType = "manipulation_pick"
	case models.CommandPlace:
		vendorType = "manipulation_place"
	case models.CommandOpen:
		vendorType = "gripper_open"
	case models.CommandClose:
		vendorType = "gripper_close"
	case models.CommandEmergencyStop:
		vendorType = "estop_cut"
	case models.CommandCustom:
		return customTarget(cmd)
	default:
		return models.WireCommand{}, fmt.Errorf("%w: boston_dynamics %s", ErrUnsupportedCommand, cmd.Type)
	}

	return wireCommand(cmd, vendorType), nil
}

// teslaBot speaks the Optimus-style dotted namespace API.
type teslaBot struct{}

var _ Translator = teslaBot{}

func (teslaBot) Descriptor() Descriptor {
	return Descriptor{
		Name:         "optimus-rpc",
		Version:      "1.3",
		Capabilities: []string{"locomotion", "manipulation", "vision", "navigation"},
		RequiresAuth: true,
		DefaultPort:  7443,
	}
}

func (teslaBot) TranslateCommand(cmd *models.RobotCommand) (models.WireCommand, error) {
	var vendorType string

	switch cmd.Type {
	case models.CommandMove:
		vendorType = "locomotion.move"
	case models.CommandRotate:
		vendorType = "locomotion.rotate"
	case models.CommandNavigate:
		vendorType = "navigation.goto"
	case models.CommandPick:
		vendorType = "manipulation.grasp"
	case models.CommandPlace:
		vendorType = "manipulation.release"
	case models.CommandOpen:
		vendorType = "hand.open"
	case models.CommandClose:
		vendorType = "hand.close"
	case models.CommandEmergencyStop:
		vendorType = "safety.estop"
	case models.CommandCustom:
		return customTarget(cmd)
	default:
		return models.WireCommand{}, fmt.Errorf("%w: tesla_bot %s", ErrUnsupportedCommand, cmd.Type)
	}

	return wireCommand(cmd, vendorType), nil
}

// customHumanoid passes command types through unchanged for robots
// that already speak our envelope protocol natively.
type customHumanoid struct{}

var _ Translator = customHumanoid{}

func (customHumanoid) Descriptor() Descriptor {
	return Descriptor{
		Name:         "robotlink-native",
		Version:      "1.0",
		Capabilities: []string{"locomotion", "manipulation"},
		RequiresAuth: false,
		DefaultPort:  8765,
	}
}

func (customHumanoid) TranslateCommand(cmd *models.RobotCommand) (models.WireCommand, error) {
	return wireCommand(cmd, string(cmd.Type)), nil
}

// customTarget resolves a CommandCustom by taking the vendor command
// name from the "command" parameter verbatim.
func customTarget(cmd *models.RobotCommand) (models.WireCommand, error) {
	name, ok := cmd.Parameters["command"].(string)
	if !ok || name == "" {
		return models.WireCommand{}, ErrMissingCustomTarget
	}

	return wireCommand(cmd, name), nil
}
