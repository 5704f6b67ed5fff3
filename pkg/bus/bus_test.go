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

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New(logger.NewTestLogger())

	var order []string

	b.Subscribe("d1", models.EventConnected, func(models.Event) {
		order = append(order, "first")
	})
	b.Subscribe("d1", models.EventConnected, func(models.Event) {
		order = append(order, "second")
	})

	b.Publish("d1", models.EventConnected, nil)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishCarriesPayloadAndTimestamp(t *testing.T) {
	b := New(logger.NewTestLogger())

	var got models.Event

	b.Subscribe("d1", models.EventCommandCompleted, func(e models.Event) {
		got = e
	})

	payload := &models.CommandResultPayload{
		Command: &models.RobotCommand{ID: "c1"},
		Success: true,
	}
	b.Publish("d1", models.EventCommandCompleted, payload)

	require.Equal(t, "d1", got.DeviceID)
	require.Equal(t, models.EventCommandCompleted, got.Type)
	assert.False(t, got.Timestamp.IsZero())
	assert.Same(t, payload, got.Payload)
}

func TestPublishIsolatedByDeviceAndType(t *testing.T) {
	b := New(logger.NewTestLogger())

	var d1Connected, d2Connected, d1Telemetry int

	b.Subscribe("d1", models.EventConnected, func(models.Event) { d1Connected++ })
	b.Subscribe("d2", models.EventConnected, func(models.Event) { d2Connected++ })
	b.Subscribe("d1", models.EventTelemetry, func(models.Event) { d1Telemetry++ })

	b.Publish("d1", models.EventConnected, nil)

	assert.Equal(t, 1, d1Connected)
	assert.Zero(t, d2Connected)
	assert.Zero(t, d1Telemetry)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	b := New(logger.NewTestLogger())

	var survived bool

	b.Subscribe("d1", models.EventError, func(models.Event) {
		panic("handler bug")
	})
	b.Subscribe("d1", models.EventError, func(models.Event) {
		survived = true
	})

	require.NotPanics(t, func() {
		b.Publish("d1", models.EventError, nil)
	})
	assert.True(t, survived)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(logger.NewTestLogger())

	var calls int

	sub := b.Subscribe("d1", models.EventDisconnected, func(models.Event) { calls++ })

	b.Publish("d1", models.EventDisconnected, nil)
	sub.Unsubscribe()
	b.Publish("d1", models.EventDisconnected, nil)

	assert.Equal(t, 1, calls)

	// Unsubscribing twice is harmless.
	require.NotPanics(t, sub.Unsubscribe)
}

func TestUnsubscribeLeavesSiblings(t *testing.T) {
	b := New(logger.NewTestLogger())

	var first, second int

	sub := b.Subscribe("d1", models.EventWarning, func(models.Event) { first++ })
	b.Subscribe("d1", models.EventWarning, func(models.Event) { second++ })

	sub.Unsubscribe()
	b.Publish("d1", models.EventWarning, nil)

	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New(logger.NewTestLogger())

	require.NotPanics(t, func() {
		b.Publish("unknown", models.EventStateUpdate, nil)
	})
}
