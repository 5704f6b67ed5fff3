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

// Package bus provides the per-device, per-event subscriber registry
// used to notify external collaborators (UI, analytics) of connection
// state changes, command results and telemetry.
package bus

import (
	"sync"
	"time"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
)

// Handler receives one event. Handlers run synchronously on the
// publishing goroutine; a panicking handler is isolated and must not
// stop the remaining handlers.
type Handler func(event models.Event)

type subscriberKey struct {
	deviceID  string
	eventType models.EventType
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous event dispatcher keyed by (device, event type).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[subscriberKey][]subscriber
	nextID      uint64
	logger      logger.Logger
}

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	bus *Bus
	key subscriberKey
	id  uint64
}

func New(log logger.Logger) *Bus {
	return &Bus{
		subscribers: make(map[subscriberKey][]subscriber),
		logger:      log,
	}
}

// Subscribe registers a handler for one event type on one device.
func (b *Bus) Subscribe(deviceID string, eventType models.EventType, handler Handler) *Subscription {
	key := subscriberKey{deviceID: deviceID, eventType: eventType}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subscribers[key] = append(b.subscribers[key], subscriber{id: b.nextID, handler: handler})

	return &Subscription{bus: b, key: key, id: b.nextID}
}

// Unsubscribe removes the handler behind a subscription. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subscribers[s.key]
	for i, sub := range subs {
		if sub.id == s.id {
			s.bus.subscribers[s.key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	if len(s.bus.subscribers[s.key]) == 0 {
		delete(s.bus.subscribers, s.key)
	}
}

// Publish delivers an event to every handler registered for the
// device and event type, in subscription order.
func (b *Bus) Publish(deviceID string, eventType models.EventType, payload interface{}) {
	event := models.Event{
		DeviceID:  deviceID,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	key := subscriberKey{deviceID: deviceID, eventType: eventType}

	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers[key]))
	copy(subs, b.subscribers[key])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub subscriber, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("device_id", event.DeviceID).
				Str("event_type", string(event.Type)).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	sub.handler(event)
}
