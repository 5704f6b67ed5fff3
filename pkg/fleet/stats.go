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

// Stats snapshots fleet-wide connection and queue state for the UI
// and analytics collaborators.
type Stats struct {
	ActiveConnections int                    `json:"active_connections"`
	QueuedCommands    int                    `json:"queued_commands"`
	Devices           map[string]DeviceStats `json:"devices"`
}

// DeviceStats is the per-device slice of Stats.
type DeviceStats struct {
	Name           string  `json:"name"`
	SignalQuality  float64 `json:"signal_quality"`
	BatteryLevel   float64 `json:"battery_level"`
	QueuedCommands int     `json:"queued_commands"`
	CommandsSent   int     `json:"commands_sent"`
	CommandsOK     int     `json:"commands_ok"`
}

// Stats reports the current fleet snapshot.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		ActiveConnections: len(m.active),
		Devices:           make(map[string]DeviceStats, len(m.active)),
	}

	for id, actor := range m.active {
		device := actor.snapshot()
		queued := actor.queue.Len()
		sent, succeeded := actor.queue.Stats()

		stats.QueuedCommands += queued
		stats.Devices[id] = DeviceStats{
			Name:           device.Name,
			SignalQuality:  device.SignalQuality,
			BatteryLevel:   device.BatteryLevel,
			QueuedCommands: queued,
			CommandsSent:   sent,
			CommandsOK:     succeeded,
		}
	}

	return stats
}
