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

// Package config loads and validates the daemon configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
)

var errSubnetRequired = errors.New("subnet is required")

const defaultScanInterval = 5 * time.Minute

// Config is the robotlink daemon configuration.
type Config struct {
	// Subnet is the CIDR range discovery scans, e.g. "192.168.1.0/24".
	Subnet string `json:"subnet"`

	// ScanInterval is the pause between discovery sweeps.
	ScanInterval models.Duration `json:"scan_interval"`

	// NatsURL selects the persistence backend. Empty runs with the
	// in-memory store.
	NatsURL string `json:"nats_url,omitempty"`
	Bucket  string `json:"bucket,omitempty"`

	// APIKey authenticates against vendors whose protocol requires it.
	APIKey string `json:"api_key,omitempty"`

	// AutoConnect connects to every discovered device after a sweep.
	AutoConnect bool `json:"auto_connect"`

	Connection *models.ConnectionConfig `json:"connection,omitempty"`
	Logging    *logger.Config           `json:"logging,omitempty"`
}

// Load reads, decodes and validates the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills defaults and rejects unusable configurations.
func (c *Config) Validate() error {
	if c.Subnet == "" {
		return errSubnetRequired
	}

	if c.ScanInterval == 0 {
		c.ScanInterval = models.Duration(defaultScanInterval)
	}

	if c.Bucket == "" {
		c.Bucket = "robotlink"
	}

	if c.Connection == nil {
		c.Connection = models.DefaultConnectionConfig()
	} else {
		c.Connection.Normalize()
	}

	return nil
}
