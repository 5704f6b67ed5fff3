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

package fleet

import (
	"fmt"
	"net"
	"regexp"

	"github.com/carverauto/robotlink/pkg/models"
)

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?)*$`)

// validateEndpoint performs the pre-flight checks: syntactically valid
// host and a port in 1-65535. These never retry; the caller must
// correct the input.
func validateEndpoint(device *models.RobotConnection) error {
	if device == nil || device.Host == "" {
		return ErrInvalidAddress
	}

	if net.ParseIP(device.Host) == nil && !hostnamePattern.MatchString(device.Host) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, device.Host)
	}

	if device.Port < 1 || device.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, device.Port)
	}

	return nil
}
