// Package discovery locates controllable devices on the local network. Two
// independent strategies run concurrently: a multicast announce/responder
// probe and a brute-force subnet probe. Their results are merged by address
// and sorted by display name.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Config
// =============================================================================

// Config configures a discovery run.
type Config struct {
	// Port is the device control port probed by the subnet strategy and
	// advertised in multicast locations. Default: 8060.
	Port int

	// Window is how long the multicast probe listens for replies.
	// Default: 5 seconds.
	Window time.Duration

	// ProbeTimeout bounds each subnet HTTP probe. Default: 2 seconds.
	ProbeTimeout time.Duration

	// ChunkSize is the number of subnet probes in flight at a time.
	// Default: 50.
	ChunkSize int

	// MulticastAddr is the group address the search datagram is sent to.
	// Default: 239.255.255.250:1900.
	MulticastAddr string

	// SearchTarget is the service type devices must advertise.
	// Default: "castforge:device".
	SearchTarget string

	// Prefixes overrides subnet enumeration when non-nil (tests). Each
	// entry is a dotted prefix like "192.168.1.".
	Prefixes []string
}

// InfoFetcher retrieves a device's info document. Implemented by
// device.Client.
type InfoFetcher interface {
	FetchInfo(ctx context.Context, address string) (domain.Device, error)
}

// =============================================================================
// Service
// =============================================================================

// Service finds candidate devices. Safe for concurrent use; each Discover
// call is independent.
type Service struct {
	config Config
	info   InfoFetcher
	logger *slog.Logger
}

// NewService creates a discovery service.
func NewService(config Config, info InfoFetcher, logger *slog.Logger) *Service {
	if config.Port == 0 {
		config.Port = 8060
	}
	if config.Window == 0 {
		config.Window = 5 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 2 * time.Second
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = 50
	}
	if config.MulticastAddr == "" {
		config.MulticastAddr = "239.255.255.250:1900"
	}
	if config.SearchTarget == "" {
		config.SearchTarget = "castforge:device"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config: config,
		info:   info,
		logger: logger.With("component", "discovery"),
	}
}

// Discover runs both strategies concurrently and merges their results,
// deduplicated by address and ordered by display name. Individual probe
// failures never fail the run; only a systemic multicast socket failure
// propagates as an error.
func (s *Service) Discover(ctx context.Context) ([]domain.Device, error) {
	var (
		wg           sync.WaitGroup
		multicast    map[string]domain.Device
		subnet       map[string]domain.Device
		multicastErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		multicast, multicastErr = s.multicastProbe(ctx)
	}()
	go func() {
		defer wg.Done()
		subnet = s.subnetProbe(ctx)
	}()
	wg.Wait()

	if multicastErr != nil {
		return nil, multicastErr
	}

	merged := mergeResults(multicast, subnet)
	s.logger.Info("discovery complete",
		"multicast", len(multicast),
		"subnet", len(subnet),
		"total", len(merged),
	)
	return merged, nil
}

// =============================================================================
// Merge
// =============================================================================

// mergeResults unions the two result sets by address. Where both strategies
// found the same address, subnet fields win per-field: that strategy already
// performed a live info fetch.
func mergeResults(multicast, subnet map[string]domain.Device) []domain.Device {
	byAddr := make(map[string]domain.Device, len(multicast)+len(subnet))
	for addr, dev := range multicast {
		byAddr[addr] = dev
	}
	for addr, dev := range subnet {
		if existing, ok := byAddr[addr]; ok {
			byAddr[addr] = existing.Merge(dev)
		} else {
			byAddr[addr] = dev
		}
	}

	devices := make([]domain.Device, 0, len(byAddr))
	for _, dev := range byAddr {
		devices = append(devices, dev)
	}
	domain.SortDevices(devices)
	return devices
}
