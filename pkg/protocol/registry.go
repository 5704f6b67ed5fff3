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

// Package protocol maps device families to their wire protocol
// metadata and translates high-level commands into vendor command
// names. Each vendor is a typed variant implementing Translator;
// there is no runtime string dispatch.
package protocol

import (
	"fmt"

	"github.com/carverauto/robotlink/pkg/models"
)

// Descriptor is the immutable per-vendor protocol metadata.
type Descriptor struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	RequiresAuth bool     `json:"requires_auth"`
	DefaultPort  int      `json:"default_port"`
}

// Translator converts high-level commands into the vendor's command
// vocabulary. Implementations are stateless and safe for concurrent use.
type Translator interface {
	Descriptor() Descriptor
	TranslateCommand(cmd *models.RobotCommand) (models.WireCommand, error)
}

var translators = map[models.RobotType]Translator{
	models.RobotTypeUnitreeG1:      unitreeG1{},
	models.RobotTypeBostonDynamics: bostonDynamics{},
	models.RobotTypeTeslaBot:       teslaBot{},
	models.RobotTypeCustom:         customHumanoid{},
}

// ForType returns the translator for a device family.
func ForType(t models.RobotType) (Translator, error) {
	tr, ok := translators[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRobotType, t)
	}

	return tr, nil
}

// DescriptorForType is a convenience lookup used by the lifecycle
// manager during handshake and auth.
func DescriptorForType(t models.RobotType) (Descriptor, error) {
	tr, err := ForType(t)
	if err != nil {
		return Descriptor{}, err
	}

	return tr.Descriptor(), nil
}

// ProbePorts returns the set of vendor default ports, used by
// discovery to probe every candidate address.
func ProbePorts() map[models.RobotType]int {
	ports := make(map[models.RobotType]int, len(translators))
	for t, tr := range translators {
		ports[t] = tr.Descriptor().DefaultPort
	}

	return ports
}

func wireCommand(cmd *models.RobotCommand, vendorType string) models.WireCommand {
	return models.WireCommand{
		ID:         cmd.ID,
		Type:       vendorType,
		Parameters: cmd.Parameters,
		Timestamp:  cmd.Timestamp,
		Priority:   cmd.Priority,
	}
}
