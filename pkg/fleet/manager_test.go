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
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/robotlink/pkg/bus"
	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/registry"
	"github.com/carverauto/robotlink/pkg/session"
)

// fakeSession feeds scripted inbound messages and, unless told
// otherwise, acknowledges every command with a success response.
type fakeSession struct {
	mu         sync.Mutex
	closed     bool
	msgCh      chan *models.InboundMessage
	autoAck    bool
	ackSuccess bool
	sent       []interface{}
}

func newFakeSession(autoAck, ackSuccess bool) *fakeSession {
	return &fakeSession{
		msgCh:      make(chan *models.InboundMessage, 64),
		autoAck:    autoAck,
		ackSuccess: ackSuccess,
	}
}

func (f *fakeSession) Send(_ context.Context, v interface{}) error {
	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()

		return session.ErrSessionClosed
	}

	f.sent = append(f.sent, v)
	autoAck := f.autoAck
	f.mu.Unlock()

	if env, ok := v.(*models.CommandEnvelope); ok && autoAck {
		f.push(&models.InboundMessage{
			Type:      models.MessageTypeCommandResponse,
			CommandID: env.Command.ID,
			Success:   f.ackSuccess,
			Error:     "simulated failure",
			Timestamp: time.Now(),
		})
	}

	return nil
}

func (f *fakeSession) push(msg *models.InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	f.msgCh <- msg
}

func (f *fakeSession) Messages() <-chan *models.InboundMessage {
	return f.msgCh
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.msgCh)
	}

	return nil
}

// fakeDialer fails a configured number of attempts before handing out
// sessions.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dialErr  error
	attempts int32
	sessions []*fakeSession
	autoAck  bool
}

func (d *fakeDialer) Dial(_ context.Context, _ *models.RobotConnection, _ *models.ConnectionConfig) (session.Session, error) {
	atomic.AddInt32(&d.attempts, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failures > 0 {
		d.failures--

		if d.dialErr != nil {
			return nil, d.dialErr
		}

		return nil, session.ErrConnectionTimeout
	}

	s := newFakeSession(d.autoAck, true)
	d.sessions = append(d.sessions, s)

	return s, nil
}

func (d *fakeDialer) attemptCount() int {
	return int(atomic.LoadInt32(&d.attempts))
}

func testDevice(id string) *models.RobotConnection {
	return &models.RobotConnection{
		ID:   id,
		Name: "Unitree G1 (192.168.1.100)",
		Type: models.RobotTypeUnitreeG1,
		Host: "192.168.1.100",
		Port: 8080,
	}
}

func fastConfig() *models.ConnectionConfig {
	cfg := models.DefaultConnectionConfig()
	cfg.RetryDelay = models.Duration(5 * time.Millisecond)
	cfg.HeartbeatInterval = models.Duration(10 * time.Millisecond)
	cfg.TelemetryInterval = models.Duration(10 * time.Millisecond)
	cfg.CommandTimeout = models.Duration(250 * time.Millisecond)

	return cfg
}

func newTestManager(t *testing.T, dialer session.Dialer) (*Manager, *bus.Bus, *registry.DeviceStore) {
	t.Helper()

	log := logger.NewTestLogger()
	store := registry.NewDeviceStore(registry.NewMemoryStore(), log)
	events := bus.New(log)

	return NewManager(dialer, store, events, log), events, store
}

func TestConnectSuccess(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, events, _ := newTestManager(t, dialer)

	connected := make(chan models.Event, 1)
	events.Subscribe("d1", models.EventConnected, func(e models.Event) {
		connected <- e
	})

	device, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)
	assert.True(t, device.IsConnected)
	assert.Equal(t, 1, dialer.attemptCount())
	assert.True(t, m.IsConnected("d1"))

	select {
	case e := <-connected:
		payload, ok := e.Payload.(*models.ConnectedPayload)
		require.True(t, ok)
		assert.Equal(t, "d1", payload.Device.ID)
	case <-time.After(time.Second):
		t.Fatal("no connected event")
	}

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestConnectAlreadyConnected(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.ErrorIs(t, err, ErrAlreadyConnected)

	// No second session was opened.
	assert.Equal(t, 1, dialer.attemptCount())
	assert.Len(t, m.ActiveIDs(), 1)

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	dialer := &fakeDialer{failures: 2, autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	cfg := fastConfig()
	cfg.MaxRetries = 2

	device, err := m.Connect(context.Background(), testDevice("d1"), cfg)
	require.NoError(t, err)
	assert.True(t, device.IsConnected)
	// 2 failed attempts plus the successful one.
	assert.Equal(t, 3, dialer.attemptCount())

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestConnectExhaustsRetries(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	m, _, _ := newTestManager(t, dialer)

	cfg := fastConfig()
	cfg.MaxRetries = 2

	_, err := m.Connect(context.Background(), testDevice("d1"), cfg)
	require.ErrorIs(t, err, ErrConnectionFailed)
	require.ErrorIs(t, err, session.ErrConnectionTimeout)
	assert.Equal(t, 3, dialer.attemptCount())
	assert.False(t, m.IsConnected("d1"))

	// Terminal failure releases the id for a later attempt.
	dialer.mu.Lock()
	dialer.failures = 0
	dialer.mu.Unlock()

	_, err = m.Connect(context.Background(), testDevice("d1"), cfg)
	require.NoError(t, err)

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestConnectValidation(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeDialer{autoAck: true})

	tests := []struct {
		name    string
		device  *models.RobotConnection
		wantErr error
	}{
		{
			name: "bad host",
			device: &models.RobotConnection{
				ID: "d1", Type: models.RobotTypeUnitreeG1, Host: "not a host!", Port: 8080,
			},
			wantErr: ErrInvalidAddress,
		},
		{
			name: "port zero",
			device: &models.RobotConnection{
				ID: "d1", Type: models.RobotTypeUnitreeG1, Host: "192.168.1.5", Port: 0,
			},
			wantErr: ErrInvalidPort,
		},
		{
			name: "port too large",
			device: &models.RobotConnection{
				ID: "d1", Type: models.RobotTypeUnitreeG1, Host: "192.168.1.5", Port: 70000,
			},
			wantErr: ErrInvalidPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Connect(context.Background(), tt.device, nil)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConnectNetworkUnavailable(t *testing.T) {
	log := logger.NewTestLogger()
	store := registry.NewDeviceStore(registry.NewMemoryStore(), log)
	m := NewManager(&fakeDialer{}, store, bus.New(log), log,
		WithNetworkCheck(func() bool { return false }))

	_, err := m.Connect(context.Background(), testDevice("d1"), nil)
	require.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestDisconnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, events, store := newTestManager(t, dialer)

	var disconnects int32

	events.Subscribe("d1", models.EventDisconnected, func(models.Event) {
		atomic.AddInt32(&disconnects, 1)
	})

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
	require.NoError(t, m.Disconnect(context.Background(), "d1"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&disconnects))
	assert.Empty(t, m.ActiveIDs())

	history, err := store.History(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "requested", history[0].Reason)
}

func TestDisconnectStopsTelemetry(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	// Let the sampler run a few cycles.
	require.Eventually(t, func() bool {
		return len(m.TelemetryHistory("d1")) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Disconnect(context.Background(), "d1"))

	sess := dialer.sessions[0]
	sess.mu.Lock()
	sentAfterClose := len(sess.sent)
	sess.mu.Unlock()

	// No further heartbeats or samples land after disconnect.
	time.Sleep(50 * time.Millisecond)

	sess.mu.Lock()
	assert.Equal(t, sentAfterClose, len(sess.sent))
	sess.mu.Unlock()

	assert.Nil(t, m.TelemetryHistory("d1"))
}

func TestEnqueueNotConnected(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeDialer{})

	err := m.Enqueue("ghost", models.NewCommand(models.CommandMove, nil))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestEmergencyStopClearsQueue(t *testing.T) {
	// Sessions that never acknowledge keep the first command in flight
	// and the rest pending.
	dialer := &fakeDialer{autoAck: false}
	m, _, _ := newTestManager(t, dialer)

	cfg := fastConfig()
	cfg.CommandTimeout = models.Duration(5 * time.Second)

	_, err := m.Connect(context.Background(), testDevice("d1"), cfg)
	require.NoError(t, err)

	for _, ct := range []models.CommandType{models.CommandMove, models.CommandPick, models.CommandPlace} {
		require.NoError(t, m.Enqueue("d1", models.NewCommand(ct, nil)))
	}

	require.NoError(t, m.EmergencyStop("d1"))
	assert.Equal(t, 1, m.QueueLen("d1"))

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestEmergencyStopAll(t *testing.T) {
	dialer := &fakeDialer{autoAck: false}
	m, _, _ := newTestManager(t, dialer)

	cfg := fastConfig()
	cfg.CommandTimeout = models.Duration(5 * time.Second)

	for _, id := range []string{"d1", "d2"} {
		device := testDevice(id)
		device.ID = id

		_, err := m.Connect(context.Background(), device, cfg)
		require.NoError(t, err)

		require.NoError(t, m.Enqueue(id, models.NewCommand(models.CommandMove, nil)))
		require.NoError(t, m.Enqueue(id, models.NewCommand(models.CommandPick, nil)))
	}

	m.EmergencyStopAll()

	assert.Equal(t, 1, m.QueueLen("d1"))
	assert.Equal(t, 1, m.QueueLen("d2"))

	m.Shutdown(context.Background())
}

func TestPeerDisconnectCleansUp(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, events, _ := newTestManager(t, dialer)

	disconnected := make(chan models.Event, 1)
	events.Subscribe("d1", models.EventDisconnected, func(e models.Event) {
		disconnected <- e
	})

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	// Peer closes the connection out from under us.
	require.NoError(t, dialer.sessions[0].Close())

	select {
	case e := <-disconnected:
		payload, ok := e.Payload.(*models.DisconnectedPayload)
		require.True(t, ok)
		assert.Equal(t, "connection lost", payload.Reason)
	case <-time.After(time.Second):
		t.Fatal("no disconnected event after peer close")
	}

	require.Eventually(t, func() bool {
		return !m.IsConnected("d1")
	}, time.Second, 5*time.Millisecond)
}

func TestInboundStateUpdate(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, events, _ := newTestManager(t, dialer)

	updates := make(chan models.Event, 1)
	events.Subscribe("d1", models.EventStateUpdate, func(e models.Event) {
		updates <- e
	})

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	dialer.sessions[0].push(&models.InboundMessage{
		Type: models.MessageTypeStateUpdate,
		State: &models.RobotState{
			BatteryLevel: 0.72,
			Quality:      0.9,
			Timestamp:    time.Now(),
		},
	})

	select {
	case e := <-updates:
		payload, ok := e.Payload.(*models.StateUpdatePayload)
		require.True(t, ok)
		assert.InDelta(t, 0.72, payload.State.BatteryLevel, 0.001)
	case <-time.After(time.Second):
		t.Fatal("no state_update event")
	}

	require.Eventually(t, func() bool {
		return m.Stats().Devices["d1"].BatteryLevel > 0.7
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestUnknownInboundTypeIgnored(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	dialer.sessions[0].push(&models.InboundMessage{Type: "firmware_gossip"})

	// Still connected and processing afterwards.
	require.NoError(t, m.Enqueue("d1", models.NewCommand(models.CommandMove, nil)))
	assert.True(t, m.IsConnected("d1"))

	require.NoError(t, m.Disconnect(context.Background(), "d1"))
}

func TestStats(t *testing.T) {
	dialer := &fakeDialer{autoAck: false}
	m, _, _ := newTestManager(t, dialer)

	cfg := fastConfig()
	cfg.CommandTimeout = models.Duration(5 * time.Second)

	_, err := m.Connect(context.Background(), testDevice("d1"), cfg)
	require.NoError(t, err)

	require.NoError(t, m.Enqueue("d1", models.NewCommand(models.CommandMove, nil)))
	require.NoError(t, m.Enqueue("d1", models.NewCommand(models.CommandPick, nil)))

	stats := m.Stats()
	assert.Equal(t, 1, stats.ActiveConnections)
	require.Contains(t, stats.Devices, "d1")

	raw, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "active_connections")

	m.Shutdown(context.Background())
}

func TestStatsConcurrentWithStateUpdates(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	_, err := m.Connect(context.Background(), testDevice("d1"), fastConfig())
	require.NoError(t, err)

	const updates = 200

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 1; i <= updates; i++ {
			dialer.sessions[0].push(&models.InboundMessage{
				Type: models.MessageTypeStateUpdate,
				State: &models.RobotState{
					BatteryLevel: float64(i) / updates,
					Quality:      0.5,
					Timestamp:    time.Now(),
				},
			})
		}
	}()

	// Read the fleet snapshot while the dispatch goroutine is applying
	// state updates to the same device record.
	for {
		stats := m.Stats()
		require.Contains(t, stats.Devices, "d1")

		for _, device := range m.ActiveDevices() {
			assert.True(t, device.IsConnected)
		}

		select {
		case <-done:
			require.Eventually(t, func() bool {
				return m.Stats().Devices["d1"].BatteryLevel == 1.0
			}, time.Second, 5*time.Millisecond)
			require.NoError(t, m.Disconnect(context.Background(), "d1"))

			return
		default:
		}
	}
}

func TestConnectDoesNotMutateCallerConfig(t *testing.T) {
	dialer := &fakeDialer{autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	cfg := &models.ConnectionConfig{MaxRetries: 1}

	_, err := m.Connect(context.Background(), testDevice("d1"), cfg)
	require.NoError(t, err)

	// Defaults are filled into a private copy, never the caller's
	// struct, so a config shared across devices keeps its zero fields.
	assert.Equal(t, models.Duration(0), cfg.RetryDelay)
	assert.Equal(t, models.Duration(0), cfg.CommandTimeout)
	assert.Equal(t, models.Duration(0), cfg.HeartbeatInterval)
	assert.Equal(t, models.Duration(0), cfg.TelemetryInterval)

	m.Shutdown(context.Background())
}

func TestConnectConcurrentSameDevice(t *testing.T) {
	dialer := &fakeDialer{failures: 1, autoAck: true}
	m, _, _ := newTestManager(t, dialer)

	cfg := fastConfig()
	cfg.MaxRetries = 3
	cfg.RetryDelay = models.Duration(50 * time.Millisecond)

	errCh := make(chan error, 2)

	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Connect(context.Background(), testDevice("d1"), cfg)
			errCh <- err
		}()
	}

	var failures, successes int

	for i := 0; i < 2; i++ {
		err := <-errCh
		if err == nil {
			successes++
		} else if errors.Is(err, ErrAlreadyConnected) {
			failures++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.Len(t, m.ActiveIDs(), 1)

	m.Shutdown(context.Background())
}
