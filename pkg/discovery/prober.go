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

package discovery

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
)

// ProbeResult is a positive response from one candidate endpoint.
type ProbeResult struct {
	Host      string
	Port      int
	RobotType models.RobotType
	Latency   time.Duration
	Metadata  map[string]interface{}
}

// Prober answers whether a robot of a given family listens at an
// address. Implementations must honor the context deadline.
type Prober interface {
	Probe(ctx context.Context, host string, port int, robotType models.RobotType) (*ProbeResult, error)
}

// TCPProber detects robots by completing a TCP handshake on the
// vendor's control port. The session layer does the protocol-level
// handshake later; a completed connect is treated as a candidate match.
type TCPProber struct {
	timeout time.Duration
	logger  logger.Logger
}

var _ Prober = (*TCPProber)(nil)

func NewTCPProber(timeout time.Duration, log logger.Logger) *TCPProber {
	if timeout == 0 {
		timeout = defaultProbeTimeout
	}

	return &TCPProber{timeout: timeout, logger: log}
}

func (p *TCPProber) Probe(ctx context.Context, host string, port int, robotType models.RobotType) (*ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if probeCtx.Err() != nil {
			return nil, probeCtx.Err()
		}

		return nil, err
	}

	latency := time.Since(start)

	if err := conn.Close(); err != nil {
		p.logger.Error().Err(err).Msg("failed to close probe connection")
	}

	return &ProbeResult{
		Host:      host,
		Port:      port,
		RobotType: robotType,
		Latency:   latency,
		Metadata: map[string]interface{}{
			"probe": "tcp",
		},
	}, nil
}
