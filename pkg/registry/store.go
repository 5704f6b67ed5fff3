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

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
)

const (
	keyKnownDevices = "devices/known"
	keyHistory      = "history/"
	keyTelemetry    = "telemetry/"

	// maxHistoryEntries bounds per-device connection history.
	maxHistoryEntries = 100
	// maxTelemetryEntries bounds the persisted telemetry snapshot.
	maxTelemetryEntries = 1000
)

// DeviceStore is the typed persistence adapter for discovered devices,
// connection history and telemetry snapshots.
type DeviceStore struct {
	mu     sync.Mutex
	kv     KVStore
	logger logger.Logger
}

func NewDeviceStore(kv KVStore, log logger.Logger) *DeviceStore {
	return &DeviceStore{kv: kv, logger: log}
}

// SaveDevices replaces the known-device set, merging with previously
// stored devices by id so a scan that misses an offline robot does not
// forget it.
func (s *DeviceStore) SaveDevices(ctx context.Context, devices []*models.RobotConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, err := s.loadDevicesLocked(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*models.RobotConnection, len(known)+len(devices))
	for _, d := range known {
		byID[d.ID] = d
	}

	for _, d := range devices {
		byID[d.ID] = d
	}

	merged := make([]*models.RobotConnection, 0, len(byID))
	for _, d := range byID {
		merged = append(merged, d)
	}

	return s.putJSON(ctx, keyKnownDevices, merged)
}

// LoadDevices returns every previously discovered device.
func (s *DeviceStore) LoadDevices(ctx context.Context) ([]*models.RobotConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadDevicesLocked(ctx)
}

func (s *DeviceStore) loadDevicesLocked(ctx context.Context) ([]*models.RobotConnection, error) {
	var devices []*models.RobotConnection

	found, err := s.getJSON(ctx, keyKnownDevices, &devices)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return devices, nil
}

// AppendHistory records a completed session, keeping the most recent
// entries only.
func (s *DeviceStore) AppendHistory(ctx context.Context, entry *models.ConnectionHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyHistory + entry.DeviceID

	var history []*models.ConnectionHistoryEntry
	if _, err := s.getJSON(ctx, key, &history); err != nil {
		return err
	}

	history = append(history, entry)
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}

	return s.putJSON(ctx, key, history)
}

// History returns the retained sessions for a device, oldest first.
func (s *DeviceStore) History(ctx context.Context, deviceID string) ([]*models.ConnectionHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []*models.ConnectionHistoryEntry
	if _, err := s.getJSON(ctx, keyHistory+deviceID, &history); err != nil {
		return nil, err
	}

	return history, nil
}

// SaveTelemetrySnapshot persists the tail of a device's telemetry ring.
func (s *DeviceStore) SaveTelemetrySnapshot(ctx context.Context, deviceID string, samples []models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(samples) > maxTelemetryEntries {
		samples = samples[len(samples)-maxTelemetryEntries:]
	}

	return s.putJSON(ctx, keyTelemetry+deviceID, samples)
}

// TelemetrySnapshot loads the persisted telemetry tail for a device.
func (s *DeviceStore) TelemetrySnapshot(ctx context.Context, deviceID string) ([]models.TelemetrySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var samples []models.TelemetrySample
	if _, err := s.getJSON(ctx, keyTelemetry+deviceID, &samples); err != nil {
		return nil, err
	}

	return samples, nil
}

func (s *DeviceStore) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("registry get %s: %w", key, err)
	}

	if !found {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("registry decode %s: %w", key, err)
	}

	return true, nil
}

func (s *DeviceStore) putJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("registry encode %s: %w", key, err)
	}

	if err := s.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("registry put %s: %w", key, err)
	}

	return nil
}
