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

// Package telemetry runs the per-device heartbeat and sampling loops
// and keeps the bounded in-memory sample history.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/robotlink/pkg/bus"
	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/session"
)

// HostStatsFunc reads operator-host load for the performance
// sub-record. Injectable so tests avoid real readings.
type HostStatsFunc func() (cpuPercent, memPercent float64)

// Monitor owns both periodic loops for one connected device. Both
// loops stop when the context handed to Start is cancelled; leaking
// them past disconnect is a defect.
type Monitor struct {
	deviceID string
	sess     session.Session
	events   *bus.Bus
	logger   logger.Logger

	clientID          string
	heartbeatInterval time.Duration
	sampleInterval    time.Duration
	hostStats         HostStatsFunc

	mu            sync.Mutex
	history       []models.TelemetrySample
	historyCap    int
	lastState     *models.RobotState
	lastRemote    *models.TelemetrySample
	lastHeartbeat time.Time
	latency       time.Duration

	done chan struct{}
}

func NewMonitor(
	deviceID, clientID string,
	sess session.Session,
	events *bus.Bus,
	cfg *models.ConnectionConfig,
	log logger.Logger,
) *Monitor {
	return &Monitor{
		deviceID:          deviceID,
		clientID:          clientID,
		sess:              sess,
		events:            events,
		logger:            log,
		heartbeatInterval: cfg.HeartbeatInterval.Duration(),
		sampleInterval:    cfg.TelemetryInterval.Duration(),
		historyCap:        cfg.TelemetryHistory,
		hostStats:         readHostStats,
		done:              make(chan struct{}),
	}
}

// SetHostStats overrides the host load reader. Test hook.
func (m *Monitor) SetHostStats(fn HostStatsFunc) {
	m.hostStats = fn
}

// Start launches the heartbeat and sampler loops.
func (m *Monitor) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		m.heartbeatLoop(ctx)
	}()

	go func() {
		defer wg.Done()

		m.sampleLoop(ctx)
	}()

	go func() {
		wg.Wait()
		close(m.done)
	}()
}

// Done is closed once both loops have exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := models.HeartbeatMessage{
				Type:      models.MessageTypeHeartbeat,
				ClientID:  m.clientID,
				Timestamp: time.Now(),
			}

			m.mu.Lock()
			m.lastHeartbeat = hb.Timestamp
			m.mu.Unlock()

			if err := m.sess.Send(ctx, &hb); err != nil {
				m.logger.Debug().Err(err).
					Str("device_id", m.deviceID).
					Msg("heartbeat send failed")
			}
		}
	}
}

func (m *Monitor) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := m.sample()
			m.append(sample)
			m.events.Publish(m.deviceID, models.EventTelemetry, &models.TelemetryPayload{Sample: &sample})
		}
	}
}

// sample folds the latest remote reading and state snapshot into one
// record, stamped with operator-host load and measured latency.
func (m *Monitor) sample() models.TelemetrySample {
	cpuPct, memPct := m.hostStats()

	m.mu.Lock()
	defer m.mu.Unlock()

	sample := models.TelemetrySample{
		Timestamp: time.Now(),
		Performance: models.PerformanceStats{
			CPUPercent:    cpuPct,
			MemoryPercent: memPct,
			LatencyMS:     float64(m.latency.Microseconds()) / 1000.0,
		},
	}

	if m.lastRemote != nil {
		sample.BatteryLevel = m.lastRemote.BatteryLevel
		sample.Temperature = m.lastRemote.Temperature
		sample.JointCurrents = m.lastRemote.JointCurrents
		sample.Errors = m.lastRemote.Errors
	}

	if m.lastState != nil {
		sample.JointPositions = m.lastState.JointPositions

		if sample.BatteryLevel == 0 {
			sample.BatteryLevel = m.lastState.BatteryLevel
		}
	}

	return sample
}

func (m *Monitor) append(sample models.TelemetrySample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, sample)
	if len(m.history) > m.historyCap {
		// FIFO eviction, oldest first.
		m.history = m.history[len(m.history)-m.historyCap:]
	}
}

// History returns the retained samples in append order.
func (m *Monitor) History() []models.TelemetrySample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.TelemetrySample, len(m.history))
	copy(out, m.history)

	return out
}

// UpdateState records the latest state_update snapshot.
func (m *Monitor) UpdateState(state *models.RobotState) {
	if state == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastState = state
}

// UpdateRemote records a telemetry message pushed by the robot.
func (m *Monitor) UpdateRemote(sample *models.TelemetrySample) {
	if sample == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRemote = sample
}

// HeartbeatAck records the robot's keep-alive reply and derives the
// round-trip latency estimate.
func (m *Monitor) HeartbeatAck() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastHeartbeat.IsZero() {
		m.latency = time.Since(m.lastHeartbeat)
	}
}

// Latency reports the last measured heartbeat round trip.
func (m *Monitor) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.latency
}

func readHostStats() (cpuPercent, memPercent float64) {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}

	return cpuPercent, memPercent
}
