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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/queue"
	"github.com/carverauto/robotlink/pkg/session"
	"github.com/carverauto/robotlink/pkg/telemetry"
)

// deviceActor owns all state for one connected device. The dispatch
// goroutine is the only reader of the session's inbound stream, so
// per-device message handling is single-threaded.
type deviceActor struct {
	manager     *Manager
	cfg         *models.ConnectionConfig
	sess        session.Session
	queue       *queue.Runner
	monitor     *telemetry.Monitor
	cancel      context.CancelFunc
	connectedAt time.Time

	// device is the actor's private copy of the record. Status fields
	// are written from the dispatch goroutine and read by Stats and
	// ActiveDevices, so every access goes through deviceMu.
	deviceMu sync.Mutex
	device   *models.RobotConnection

	pendingMu sync.Mutex
	pending   map[string]chan *models.InboundMessage
}

var _ queue.Executor = (*deviceActor)(nil)

// Execute sends one command envelope and blocks for the robot's
// command_response, or until the command timeout fires.
func (a *deviceActor) Execute(ctx context.Context, env *models.CommandEnvelope) error {
	ch := make(chan *models.InboundMessage, 1)

	a.pendingMu.Lock()
	a.pending[env.Command.ID] = ch
	a.pendingMu.Unlock()

	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, env.Command.ID)
		a.pendingMu.Unlock()
	}()

	if err := a.sess.Send(ctx, env); err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrCommandTimeout, env.Command.ID)
	case msg := <-ch:
		if !msg.Success {
			return fmt.Errorf("%w: %s", ErrCommandFailed, msg.Error)
		}

		return nil
	}
}

// dispatch routes inbound session messages until the session closes or
// the actor is cancelled. A closed inbound stream with a live actor is
// a peer-initiated disconnect.
func (a *deviceActor) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.sess.Messages():
			if !ok {
				select {
				case <-ctx.Done():
					// Local teardown already in progress.
				default:
					go func() {
						_ = a.manager.disconnect(context.Background(), a.device.ID, "connection lost")
					}()
				}

				return
			}

			a.handle(msg)
		}
	}
}

func (a *deviceActor) handle(msg *models.InboundMessage) {
	switch msg.Type {
	case models.MessageTypeCommandResponse:
		a.resolveCommand(msg)
	case models.MessageTypeStateUpdate:
		a.monitor.UpdateState(msg.State)
		a.applyState(msg.State)
		a.manager.events.Publish(a.device.ID, models.EventStateUpdate, &models.StateUpdatePayload{State: msg.State})
	case models.MessageTypeTelemetry:
		a.monitor.UpdateRemote(msg.Telemetry)
	case models.MessageTypeHeartbeat:
		a.monitor.HeartbeatAck()
		a.touch()
	case models.MessageTypeError:
		a.manager.events.Publish(a.device.ID, models.EventError, &models.DiagnosticPayload{Message: msg.Message})
	case models.MessageTypeWarning:
		a.manager.events.Publish(a.device.ID, models.EventWarning, &models.DiagnosticPayload{Message: msg.Message})
	case models.MessageTypeCapabilityUpdate:
		a.applyCapabilities(msg.Capabilities)
	default:
		a.manager.logger.Debug().
			Str("device_id", a.device.ID).
			Str("type", msg.Type).
			Msg("ignoring unknown message type")
	}
}

func (a *deviceActor) resolveCommand(msg *models.InboundMessage) {
	a.pendingMu.Lock()
	ch, ok := a.pending[msg.CommandID]
	a.pendingMu.Unlock()

	if !ok {
		// Late response for a command that already timed out.
		a.manager.logger.Debug().
			Str("device_id", a.device.ID).
			Str("command_id", msg.CommandID).
			Msg("response for unknown command")

		return
	}

	select {
	case ch <- msg:
	default:
	}
}

func (a *deviceActor) applyState(state *models.RobotState) {
	if state == nil {
		return
	}

	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()

	a.device.BatteryLevel = state.BatteryLevel
	a.device.SignalQuality = state.Quality
	a.device.LastSeen = time.Now()
}

func (a *deviceActor) applyCapabilities(capabilities []string) {
	if len(capabilities) == 0 {
		return
	}

	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()

	if a.device.Metadata == nil {
		a.device.Metadata = make(map[string]interface{})
	}

	a.device.Metadata["capabilities"] = capabilities
}

func (a *deviceActor) touch() {
	a.deviceMu.Lock()
	a.device.LastSeen = time.Now()
	a.deviceMu.Unlock()
}

func (a *deviceActor) setConnected(connected bool) {
	a.deviceMu.Lock()
	a.device.IsConnected = connected
	a.deviceMu.Unlock()
}

// snapshot returns a copy of the device record safe to hand out while
// the dispatch goroutine keeps updating the original.
func (a *deviceActor) snapshot() *models.RobotConnection {
	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()

	record := *a.device

	if a.device.Metadata != nil {
		meta := make(map[string]interface{}, len(a.device.Metadata))
		for k, v := range a.device.Metadata {
			meta[k] = v
		}

		record.Metadata = meta
	}

	return &record
}

// shutdown cancels every loop and closes the session. Waits for the
// queue runner and monitor so no goroutine outlives the device.
func (a *deviceActor) shutdown() {
	a.cancel()
	_ = a.sess.Close()

	<-a.queue.Done()
	<-a.monitor.Done()
}
