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

package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/protocol"
)

const inboundBuffer = 64

// WSDialer opens WebSocket sessions against a robot's control port.
type WSDialer struct {
	clientID string
	apiKey   string
	logger   logger.Logger
}

var _ Dialer = (*WSDialer)(nil)

func NewWSDialer(clientID, apiKey string, log logger.Logger) *WSDialer {
	return &WSDialer{clientID: clientID, apiKey: apiKey, logger: log}
}

// Dial connects, performs the open handshake, and authenticates when
// the vendor protocol requires it. A session is only returned once the
// robot has acknowledged the handshake.
func (d *WSDialer) Dial(ctx context.Context, device *models.RobotConnection, cfg *models.ConnectionConfig) (Session, error) {
	desc, err := protocol.DescriptorForType(device.Type)
	if err != nil {
		return nil, err
	}

	u := url.URL{Scheme: "ws", Host: device.Address(), Path: "/ws"}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout.Duration()}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrConnectionTimeout, device.Address())
		}

		return nil, fmt.Errorf("dial %s: %w", device.Address(), err)
	}

	s := newWSSession(conn, device.ID, d.logger)

	if err := d.openHandshake(ctx, s, device, desc, cfg); err != nil {
		_ = s.Close()

		return nil, err
	}

	if desc.RequiresAuth {
		if err := d.authenticate(ctx, s, cfg); err != nil {
			_ = s.Close()

			return nil, err
		}
	}

	return s, nil
}

// openHandshake declares the requested capabilities and waits for the
// robot's capability_update acknowledgement.
func (d *WSDialer) openHandshake(
	ctx context.Context,
	s *wsSession,
	device *models.RobotConnection,
	desc protocol.Descriptor,
	cfg *models.ConnectionConfig,
) error {
	hs := models.HandshakeMessage{
		Type:                  models.MessageTypeHandshake,
		RobotType:             device.Type,
		ClientID:              d.clientID,
		ProtocolVersion:       desc.Version,
		RequestedCapabilities: desc.Capabilities,
		Timestamp:             time.Now(),
	}

	if err := s.Send(ctx, &hs); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	msg, err := s.await(ctx, models.MessageTypeCapabilityUpdate, cfg.ConnectTimeout.Duration())
	if err != nil {
		return fmt.Errorf("%w: no handshake acknowledgement", ErrConnectionTimeout)
	}

	d.logger.Debug().
		Str("device_id", device.ID).
		Strs("capabilities", msg.Capabilities).
		Msg("handshake acknowledged")

	return nil
}

// authenticate runs the challenge/response exchange with its own
// timeout, independent of the connect timeout.
func (d *WSDialer) authenticate(ctx context.Context, s *wsSession, cfg *models.ConnectionConfig) error {
	req := models.AuthRequest{
		Type: models.MessageTypeAuthenticate,
		Credentials: models.AuthCredentials{
			APIKey:   d.apiKey,
			ClientID: d.clientID,
		},
	}

	if err := s.Send(ctx, &req); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	msg, err := s.await(ctx, models.MessageTypeAuthResponse, cfg.AuthTimeout.Duration())
	if err != nil {
		return fmt.Errorf("%w: no auth response", ErrAuthenticationFailed)
	}

	if !msg.Success {
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, msg.Error)
	}

	return nil
}

// wsSession wraps one gorilla connection with a buffered inbound pump.
type wsSession struct {
	conn     *websocket.Conn
	deviceID string
	logger   logger.Logger

	writeMu   sync.Mutex
	msgCh     chan *models.InboundMessage
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Session = (*wsSession)(nil)

func newWSSession(conn *websocket.Conn, deviceID string, log logger.Logger) *wsSession {
	s := &wsSession{
		conn:     conn,
		deviceID: deviceID,
		logger:   log,
		msgCh:    make(chan *models.InboundMessage, inboundBuffer),
		closed:   make(chan struct{}),
	}

	go s.readLoop()

	return s
}

func (s *wsSession) Send(ctx context.Context, v interface{}) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}

	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("session write: %w", err)
	}

	return nil
}

func (s *wsSession) Messages() <-chan *models.InboundMessage {
	return s.msgCh
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		_ = s.conn.Close()
	})

	return nil
}

func (s *wsSession) readLoop() {
	defer close(s.msgCh)

	for {
		var msg models.InboundMessage

		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn().Err(err).Str("device_id", s.deviceID).Msg("session read failed")
				}
			}

			return
		}

		select {
		case s.msgCh <- &msg:
		case <-s.closed:
			return
		}
	}
}

// await reads inbound messages until one of the wanted type arrives,
// discarding anything else that lands during connection setup.
func (s *wsSession) await(ctx context.Context, msgType string, timeout time.Duration) (*models.InboundMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrSessionClosed
		case msg, ok := <-s.msgCh:
			if !ok {
				return nil, ErrSessionClosed
			}

			if msg.Type == msgType {
				return msg, nil
			}
		}
	}
}
