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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
)

func newTestStore(t *testing.T) *DeviceStore {
	t.Helper()

	return NewDeviceStore(NewMemoryStore(), logger.NewTestLogger())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()

	_, found, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Put(ctx, "k", []byte("v1")))

	raw, found, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), raw)

	// The store keeps its own copy of the value.
	raw[0] = 'x'

	raw, _, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), raw)

	require.NoError(t, kv.Delete(ctx, "k"))

	_, found, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadDevicesEmpty(t *testing.T) {
	store := newTestStore(t)

	devices, err := store.LoadDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestSaveDevicesMergesByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveDevices(ctx, []*models.RobotConnection{
		{ID: "a", Host: "10.0.0.1", Port: 8080, SignalQuality: 0.5},
		{ID: "b", Host: "10.0.0.2", Port: 9091},
	}))

	// A later scan that only sees device "a" updates it without
	// forgetting "b".
	require.NoError(t, store.SaveDevices(ctx, []*models.RobotConnection{
		{ID: "a", Host: "10.0.0.1", Port: 8080, SignalQuality: 0.9},
	}))

	devices, err := store.LoadDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	byID := make(map[string]*models.RobotConnection)
	for _, d := range devices {
		byID[d.ID] = d
	}

	require.Contains(t, byID, "a")
	require.Contains(t, byID, "b")
	assert.InDelta(t, 0.9, byID["a"].SignalQuality, 0.001)
}

func TestAppendHistoryBounded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxHistoryEntries+10; i++ {
		require.NoError(t, store.AppendHistory(ctx, &models.ConnectionHistoryEntry{
			DeviceID:    "d1",
			ConnectedAt: base.Add(time.Duration(i) * time.Minute),
			Reason:      fmt.Sprintf("session-%d", i),
		}))
	}

	history, err := store.History(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, history, maxHistoryEntries)

	// Oldest entries were evicted, order is preserved.
	assert.Equal(t, "session-10", history[0].Reason)
	assert.Equal(t, fmt.Sprintf("session-%d", maxHistoryEntries+9), history[len(history)-1].Reason)
}

func TestHistoryIsolatedPerDevice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AppendHistory(ctx, &models.ConnectionHistoryEntry{DeviceID: "d1", Reason: "requested"}))
	require.NoError(t, store.AppendHistory(ctx, &models.ConnectionHistoryEntry{DeviceID: "d2", Reason: "connection lost"}))

	h1, err := store.History(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, h1, 1)
	assert.Equal(t, "requested", h1[0].Reason)

	h2, err := store.History(ctx, "d2")
	require.NoError(t, err)
	require.Len(t, h2, 1)
	assert.Equal(t, "connection lost", h2[0].Reason)
}

func TestSaveTelemetrySnapshotTrimsTail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	samples := make([]models.TelemetrySample, maxTelemetryEntries+50)
	for i := range samples {
		samples[i] = models.TelemetrySample{BatteryLevel: float64(i)}
	}

	require.NoError(t, store.SaveTelemetrySnapshot(ctx, "d1", samples))

	got, err := store.TelemetrySnapshot(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, maxTelemetryEntries)

	// The newest samples survive.
	assert.InDelta(t, 50, got[0].BatteryLevel, 0.001)
	assert.InDelta(t, float64(maxTelemetryEntries+49), got[len(got)-1].BatteryLevel, 0.001)
}

func TestTelemetrySnapshotEmpty(t *testing.T) {
	store := newTestStore(t)

	got, err := store.TelemetrySnapshot(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, got)
}
