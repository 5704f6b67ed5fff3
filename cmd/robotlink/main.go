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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/robotlink/pkg/bus"
	"github.com/carverauto/robotlink/pkg/config"
	"github.com/carverauto/robotlink/pkg/discovery"
	"github.com/carverauto/robotlink/pkg/fleet"
	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/registry"
	"github.com/carverauto/robotlink/pkg/session"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/robotlink/robotlink.json", "Path to robotlink config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{Level: "info", Output: "stdout"}
	}

	mainLogger, err := logger.NewLogger(logConfig, "robotlink")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			mainLogger.Error().Err(err).Msg("failed to close store")
		}
	}()

	store := registry.NewDeviceStore(kv, mainLogger)
	events := bus.New(mainLogger)
	clientID := uuid.New().String()

	dialer := session.NewWSDialer(clientID, cfg.APIKey, mainLogger)
	manager := fleet.NewManager(dialer, store, events, mainLogger,
		fleet.WithClientID(clientID),
		fleet.WithNetworkCheck(discovery.NetworkAvailable))
	engine := discovery.NewEngine(discovery.NewTCPProber(0, mainLogger), store, mainLogger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanLoop(runCtx, cfg, engine, manager, mainLogger)

	mainLogger.Info().Msg("shutting down")
	manager.Shutdown(ctx)

	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (registry.KVStore, error) {
	if cfg.NatsURL == "" {
		return registry.NewMemoryStore(), nil
	}

	store, err := registry.NewNatsStore(ctx, cfg.NatsURL, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open NATS store: %w", err)
	}

	return store, nil
}

// scanLoop sweeps the subnet on the configured interval until the
// context is cancelled, optionally connecting to whatever it finds.
func scanLoop(ctx context.Context, cfg *config.Config, engine *discovery.Engine, manager *fleet.Manager, log logger.Logger) {
	ticker := time.NewTicker(cfg.ScanInterval.Duration())
	defer ticker.Stop()

	for {
		devices, err := engine.Scan(ctx, cfg.Subnet)
		if err != nil && !errors.Is(err, discovery.ErrDiscoveryInProgress) {
			log.Error().Err(err).Msg("discovery scan failed")
		}

		if cfg.AutoConnect {
			connectAll(ctx, devices, manager, cfg.Connection, log)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func connectAll(ctx context.Context, devices []*models.RobotConnection, manager *fleet.Manager, connCfg *models.ConnectionConfig, log logger.Logger) {
	for _, device := range devices {
		if manager.IsConnected(device.ID) {
			continue
		}

		go func(d *models.RobotConnection) {
			if _, err := manager.Connect(ctx, d, connCfg); err != nil &&
				!errors.Is(err, fleet.ErrAlreadyConnected) {
				log.Warn().Err(err).Str("device_id", d.ID).Msg("auto-connect failed")
			}
		}(device)
	}
}
