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

// Package discovery probes a subnet plus previously known devices for
// robot control endpoints. One scan runs at a time; concurrent calls
// are rejected, not queued.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/protocol"
	"github.com/carverauto/robotlink/pkg/registry"
)

const (
	defaultProbeTimeout = 3 * time.Second
	defaultBatchSize    = 50
	defaultBatchPause   = 100 * time.Millisecond
)

// priorityHostOctets are the last octets probed before the rest of the
// range. Robots on site networks tend to get these assignments.
var priorityHostOctets = []int{100, 101, 102, 110, 200, 201, 2, 10}

type probeTarget struct {
	host      string
	port      int
	robotType models.RobotType
}

// Engine scans for robots. Results are persisted to the device store
// so later scans can re-probe known devices directly.
type Engine struct {
	prober     Prober
	store      *registry.DeviceStore
	logger     logger.Logger
	batchSize  int
	batchPause time.Duration

	// netCheck reports whether any usable interface is up. Injectable
	// so tests can force the unavailable path.
	netCheck func() bool

	mu       sync.Mutex
	scanning bool
}

// Option tunes engine construction.
type Option func(*Engine)

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithBatchPause(d time.Duration) Option {
	return func(e *Engine) {
		e.batchPause = d
	}
}

func WithNetworkCheck(check func() bool) Option {
	return func(e *Engine) {
		e.netCheck = check
	}
}

func NewEngine(prober Prober, store *registry.DeviceStore, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		prober:     prober,
		store:      store,
		logger:     log,
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
		netCheck:   NetworkAvailable,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Scan probes the subnet (CIDR notation) and all previously known
// devices, returning every candidate found. Fails immediately with
// ErrDiscoveryInProgress when a scan is already running and with
// ErrNetworkUnavailable when no interface is usable.
func (e *Engine) Scan(ctx context.Context, subnet string) ([]*models.RobotConnection, error) {
	e.mu.Lock()
	if e.scanning {
		e.mu.Unlock()

		return nil, ErrDiscoveryInProgress
	}

	e.scanning = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.scanning = false
		e.mu.Unlock()
	}()

	if !e.netCheck() {
		return nil, ErrNetworkUnavailable
	}

	targets, err := e.buildTargets(ctx, subnet)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("subnet", subnet).
		Int("targets", len(targets)).
		Msg("starting discovery scan")

	results := e.probeAll(ctx, targets)
	devices := assembleDevices(results)

	if err := e.store.SaveDevices(ctx, devices); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist discovered devices")
	}

	e.logger.Info().Int("found", len(devices)).Msg("discovery scan complete")

	return devices, nil
}

// buildTargets orders candidates: known devices first, then priority
// addresses, then the remaining range, with every vendor port probed
// per address.
func (e *Engine) buildTargets(ctx context.Context, subnet string) ([]probeTarget, error) {
	hosts, err := enumerateHosts(subnet)
	if err != nil {
		return nil, err
	}

	ports := vendorPorts()

	var targets []probeTarget

	seen := make(map[string]bool)

	known, err := e.store.LoadDevices(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to load known devices, scanning range only")
	}

	for _, d := range known {
		if seen[d.Host] {
			continue
		}

		seen[d.Host] = true
		// Re-probe the known port first, then the other vendor ports in
		// case the robot was re-flashed.
		targets = append(targets, probeTarget{host: d.Host, port: d.Port, robotType: d.Type})

		for _, p := range ports {
			if p.port == d.Port {
				continue
			}

			targets = append(targets, probeTarget{host: d.Host, port: p.port, robotType: p.robotType})
		}
	}

	ordered := orderHosts(hosts)
	for _, host := range ordered {
		if seen[host] {
			continue
		}

		for _, p := range ports {
			targets = append(targets, probeTarget{host: host, port: p.port, robotType: p.robotType})
		}
	}

	return targets, nil
}

// probeAll executes probes in bounded batches with a small pause in
// between so the scan does not saturate the network.
func (e *Engine) probeAll(ctx context.Context, targets []probeTarget) []*ProbeResult {
	var (
		mu      sync.Mutex
		results []*ProbeResult
	)

	for start := 0; start < len(targets); start += e.batchSize {
		if ctx.Err() != nil {
			break
		}

		end := start + e.batchSize
		if end > len(targets) {
			end = len(targets)
		}

		var wg sync.WaitGroup

		for _, target := range targets[start:end] {
			wg.Add(1)

			go func(t probeTarget) {
				defer wg.Done()

				result, err := e.prober.Probe(ctx, t.host, t.port, t.robotType)
				if err != nil || result == nil {
					return
				}

				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}(target)
		}

		wg.Wait()

		if end < len(targets) && e.batchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.batchPause):
			}
		}
	}

	return results
}

// assembleDevices de-duplicates probe results by address (first match
// wins) and synthesizes device records.
func assembleDevices(results []*ProbeResult) []*models.RobotConnection {
	now := time.Now()
	byHost := make(map[string]bool)

	var devices []*models.RobotConnection

	for _, r := range results {
		if byHost[r.Host] {
			continue
		}

		byHost[r.Host] = true

		devices = append(devices, &models.RobotConnection{
			ID:            fmt.Sprintf("%s-%s", r.RobotType, r.Host),
			Name:          displayName(r.RobotType, r.Host),
			Type:          r.RobotType,
			Host:          r.Host,
			Port:          r.Port,
			FirstSeen:     now,
			LastSeen:      now,
			SignalQuality: qualityFromLatency(r.Latency),
			Metadata:      r.Metadata,
		})
	}

	return devices
}

// qualityFromLatency maps probe latency onto a 0-1 signal estimate.
// Sub-millisecond probes score ~1.0, probes near the timeout ~0.1.
func qualityFromLatency(latency time.Duration) float64 {
	q := 1.0 - latency.Seconds()/defaultProbeTimeout.Seconds()
	if q < 0.1 {
		q = 0.1
	}

	if q > 1.0 {
		q = 1.0
	}

	return q
}

func displayName(t models.RobotType, host string) string {
	switch t {
	case models.RobotTypeUnitreeG1:
		return fmt.Sprintf("Unitree G1 (%s)", host)
	case models.RobotTypeBostonDynamics:
		return fmt.Sprintf("Boston Dynamics (%s)", host)
	case models.RobotTypeTeslaBot:
		return fmt.Sprintf("Tesla Bot (%s)", host)
	default:
		return fmt.Sprintf("Humanoid (%s)", host)
	}
}

// enumerateHosts expands an IPv4 CIDR into host addresses, skipping
// the network and broadcast addresses.
func enumerateHosts(subnet string) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSubnet, subnet)
	}

	ip := ipNet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("%w: only IPv4 subnets are supported", ErrInvalidSubnet)
	}

	ones, bits := ipNet.Mask.Size()
	hostCount := 1 << (bits - ones)

	var hosts []string

	base := uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])

	for i := 1; i < hostCount-1; i++ {
		addr := base + uint32(i)
		hosts = append(hosts, net.IPv4(
			byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr)).String())
	}

	return hosts, nil
}

// orderHosts moves priority last-octet addresses to the front of the
// scan, preserving relative order within each group.
func orderHosts(hosts []string) []string {
	priority := make(map[int]int, len(priorityHostOctets))
	for rank, octet := range priorityHostOctets {
		priority[octet] = rank + 1
	}

	rankOf := func(host string) int {
		ip := net.ParseIP(host).To4()
		if ip == nil {
			return 0
		}

		if r, ok := priority[int(ip[3])]; ok {
			return r
		}

		return len(priorityHostOctets) + 2
	}

	ordered := make([]string, len(hosts))
	copy(ordered, hosts)

	sort.SliceStable(ordered, func(i, j int) bool {
		return rankOf(ordered[i]) < rankOf(ordered[j])
	})

	return ordered
}

type portEntry struct {
	robotType models.RobotType
	port      int
}

// vendorPorts returns the vendor probe ports in the canonical family
// order so probe ordering is stable across runs.
func vendorPorts() []portEntry {
	ports := protocol.ProbePorts()

	entries := make([]portEntry, 0, len(ports))
	for _, t := range models.KnownRobotTypes() {
		if port, ok := ports[t]; ok {
			entries = append(entries, portEntry{robotType: t, port: port})
		}
	}

	return entries
}

// NetworkAvailable reports whether any non-loopback interface is up
// with at least one address. Shared with the lifecycle manager's
// connect pre-flight check.
func NetworkAvailable() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}

	return false
}
