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

// Package fleet owns the per-device connection lifecycle: connect with
// bounded fixed-delay retries, handshake and auth through the session
// dialer, command queue and monitor registration, and idempotent
// disconnect cleanup. Each device runs independently; no device's
// failure stalls another's pipeline.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/robotlink/pkg/bus"
	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/protocol"
	"github.com/carverauto/robotlink/pkg/queue"
	"github.com/carverauto/robotlink/pkg/registry"
	"github.com/carverauto/robotlink/pkg/session"
	"github.com/carverauto/robotlink/pkg/telemetry"
)

// Manager is the connection lifecycle manager for the whole fleet.
type Manager struct {
	clientID string
	dialer   session.Dialer
	store    *registry.DeviceStore
	events   *bus.Bus
	logger   logger.Logger

	// netCheck reports whether any usable interface is up; injectable
	// for tests.
	netCheck func() bool

	mu         sync.Mutex
	active     map[string]*deviceActor
	connecting map[string]bool
}

// Option tunes manager construction.
type Option func(*Manager)

func WithNetworkCheck(check func() bool) Option {
	return func(m *Manager) {
		m.netCheck = check
	}
}

func WithClientID(id string) Option {
	return func(m *Manager) {
		m.clientID = id
	}
}

func NewManager(dialer session.Dialer, store *registry.DeviceStore, events *bus.Bus, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		clientID:   uuid.New().String(),
		dialer:     dialer,
		store:      store,
		events:     events,
		logger:     log,
		netCheck:   func() bool { return true },
		active:     make(map[string]*deviceActor),
		connecting: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Connect establishes a session to the device, retrying with a fixed
// delay up to cfg.MaxRetries extra attempts. A nil cfg uses defaults;
// a non-nil cfg is read, never modified. The returned record reflects
// status at connect time; later updates surface through Stats and
// ActiveDevices.
func (m *Manager) Connect(ctx context.Context, device *models.RobotConnection, cfg *models.ConnectionConfig) (*models.RobotConnection, error) {
	if err := validateEndpoint(device); err != nil {
		return nil, err
	}

	translator, err := protocol.ForType(device.Type)
	if err != nil {
		return nil, err
	}

	if !m.netCheck() {
		return nil, ErrNetworkUnavailable
	}

	if cfg == nil {
		cfg = models.DefaultConnectionConfig()
	} else {
		// Normalize a private copy so the caller's config, which may
		// be shared across devices, is never rewritten.
		c := *cfg
		c.Normalize()
		cfg = &c
	}

	if err := m.reserve(device.ID); err != nil {
		return nil, err
	}

	defer m.release(device.ID)

	sess, err := m.dialWithRetries(ctx, device, cfg)
	if err != nil {
		return nil, err
	}

	device.IsConnected = true
	device.LastSeen = time.Now()

	actor := m.startActor(device, cfg, sess, translator)

	m.mu.Lock()
	m.active[device.ID] = actor
	m.mu.Unlock()

	if err := m.store.SaveDevices(ctx, []*models.RobotConnection{device}); err != nil {
		m.logger.Warn().Err(err).Str("device_id", device.ID).Msg("failed to persist connected device")
	}

	m.events.Publish(device.ID, models.EventConnected, &models.ConnectedPayload{Device: device})
	m.logger.Info().
		Str("device_id", device.ID).
		Str("address", device.Address()).
		Msg("robot connected")

	return device, nil
}

func (m *Manager) dialWithRetries(ctx context.Context, device *models.RobotConnection, cfg *models.ConnectionConfig) (session.Session, error) {
	attempts := cfg.MaxRetries + 1

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		}

		sess, err := m.dialer.Dial(ctx, device, cfg)
		if err == nil {
			return sess, nil
		}

		lastErr = err

		if cfg.EnableLogging {
			m.logger.Warn().Err(err).
				Str("device_id", device.ID).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Msg("connection attempt failed")
		}

		if attempt == attempts {
			break
		}

		// Fixed delay, deliberately not exponential.
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		case <-time.After(cfg.RetryDelay.Duration()):
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, lastErr)
}

// reserve claims the device id so concurrent Connect calls and an
// existing session both fail fast with ErrAlreadyConnected.
func (m *Manager) reserve(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[deviceID]; ok {
		return ErrAlreadyConnected
	}

	if m.connecting[deviceID] {
		return ErrAlreadyConnected
	}

	m.connecting[deviceID] = true

	return nil
}

func (m *Manager) release(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.connecting, deviceID)
}

func (m *Manager) startActor(
	device *models.RobotConnection,
	cfg *models.ConnectionConfig,
	sess session.Session,
	translator protocol.Translator,
) *deviceActor {
	actorCtx, cancel := context.WithCancel(context.Background())

	// The actor mutates status fields from its dispatch goroutine, so
	// it works on its own copy rather than the caller's record.
	record := *device

	actor := &deviceActor{
		manager:     m,
		device:      &record,
		cfg:         cfg,
		sess:        sess,
		cancel:      cancel,
		connectedAt: time.Now(),
		pending:     make(map[string]chan *models.InboundMessage),
	}

	actor.monitor = telemetry.NewMonitor(device.ID, m.clientID, sess, m.events, cfg, m.logger)
	actor.queue = queue.NewRunner(device.ID, translator, actor, m.events, cfg.CommandTimeout.Duration(), m.logger)

	actor.queue.Start(actorCtx)
	actor.monitor.Start(actorCtx)

	go actor.dispatch(actorCtx)

	return actor
}

// Disconnect tears down the device's session, stops its loops, drains
// its queue, and removes it from the active set. Idempotent: unknown
// ids return nil.
func (m *Manager) Disconnect(ctx context.Context, deviceID string) error {
	return m.disconnect(ctx, deviceID, "requested")
}

func (m *Manager) disconnect(ctx context.Context, deviceID, reason string) error {
	m.mu.Lock()
	actor, ok := m.active[deviceID]

	if ok {
		delete(m.active, deviceID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	actor.shutdown()

	sent, succeeded := actor.queue.Stats()

	entry := &models.ConnectionHistoryEntry{
		DeviceID:       deviceID,
		ConnectedAt:    actor.connectedAt,
		DisconnectedAt: time.Now(),
		Reason:         reason,
		CommandsSent:   sent,
		CommandsOK:     succeeded,
	}

	if err := m.store.AppendHistory(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to record connection history")
	}

	if samples := actor.monitor.History(); len(samples) > 0 {
		if err := m.store.SaveTelemetrySnapshot(ctx, deviceID, samples); err != nil {
			m.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to persist telemetry snapshot")
		}
	}

	actor.setConnected(false)

	m.events.Publish(deviceID, models.EventDisconnected, &models.DisconnectedPayload{Reason: reason})
	m.logger.Info().
		Str("device_id", deviceID).
		Str("reason", reason).
		Msg("robot disconnected")

	return nil
}

// Enqueue submits a command to a connected device's queue.
func (m *Manager) Enqueue(deviceID string, cmd *models.RobotCommand) error {
	actor, ok := m.lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}

	if err := actor.queue.Enqueue(cmd); err != nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}

	return nil
}

// EmergencyStop clears the device's queue and preempts it with a
// single emergency stop command.
func (m *Manager) EmergencyStop(deviceID string) error {
	actor, ok := m.lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}

	m.events.Publish(deviceID, models.EventEmergencyStop, nil)

	if err := actor.queue.Preempt(models.NewEmergencyStop()); err != nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}

	return nil
}

// EmergencyStopAll applies EmergencyStop to every connected device.
func (m *Manager) EmergencyStopAll() {
	for _, id := range m.ActiveIDs() {
		if err := m.EmergencyStop(id); err != nil && !errors.Is(err, ErrNotConnected) {
			m.logger.Error().Err(err).Str("device_id", id).Msg("emergency stop failed")
		}
	}
}

// QueueLen reports pending commands for a device; zero for unknown ids.
func (m *Manager) QueueLen(deviceID string) int {
	actor, ok := m.lookup(deviceID)
	if !ok {
		return 0
	}

	return actor.queue.Len()
}

// TelemetryHistory returns the in-memory sample ring for a device.
func (m *Manager) TelemetryHistory(deviceID string) []models.TelemetrySample {
	actor, ok := m.lookup(deviceID)
	if !ok {
		return nil
	}

	return actor.monitor.History()
}

// ActiveIDs lists connected device ids.
func (m *Manager) ActiveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}

	return ids
}

// ActiveDevices snapshots the connected device records.
func (m *Manager) ActiveDevices() []*models.RobotConnection {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]*models.RobotConnection, 0, len(m.active))
	for _, actor := range m.active {
		devices = append(devices, actor.snapshot())
	}

	return devices
}

// IsConnected reports whether the device id is in the active set.
func (m *Manager) IsConnected(deviceID string) bool {
	_, ok := m.lookup(deviceID)

	return ok
}

func (m *Manager) lookup(deviceID string) (*deviceActor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	actor, ok := m.active[deviceID]

	return actor, ok
}

// Shutdown disconnects every device. Used by the daemon on exit.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, id := range m.ActiveIDs() {
		if err := m.disconnect(ctx, id, "shutdown"); err != nil {
			m.logger.Error().Err(err).Str("device_id", id).Msg("shutdown disconnect failed")
		}
	}
}
