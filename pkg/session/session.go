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

// Package session establishes and owns the live WebSocket connection
// to one robot: open handshake, optional challenge/response auth, and
// the inbound message pump.
package session

import (
	"context"

	"github.com/carverauto/robotlink/pkg/models"
)

// Session is a live bidirectional connection to one robot, valid from
// handshake success until Close or peer disconnect.
type Session interface {
	// Send writes one JSON message. Safe for concurrent use.
	Send(ctx context.Context, v interface{}) error

	// Messages returns the inbound message stream. The channel is
	// closed when the peer disconnects or Close is called.
	Messages() <-chan *models.InboundMessage

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer opens sessions. The lifecycle manager retries around Dial;
// one Dial call is one connection attempt including handshake and auth.
type Dialer interface {
	Dial(ctx context.Context, device *models.RobotConnection, cfg *models.ConnectionConfig) (Session, error)
}
