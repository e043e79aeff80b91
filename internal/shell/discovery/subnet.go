package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/castforge/castforge/internal/shell/device"
)

// commonPrefixes are private ranges probed on every run, after any prefixes
// derived from the machine's own interfaces.
var commonPrefixes = []string{
	"192.168.0.",
	"192.168.1.",
	"10.0.0.",
	"10.0.1.",
	"172.16.0.",
}

// =============================================================================
// Subnet Probe
// =============================================================================

// subnetProbe issues a short info GET to every host suffix 1-254 of each
// candidate prefix, with at most ChunkSize requests in flight. Per-request
// failures yield no result; the probe as a whole cannot fail.
func (s *Service) subnetProbe(ctx context.Context) map[string]domain.Device {
	prefixes := s.config.Prefixes
	if prefixes == nil {
		prefixes = candidatePrefixes()
	}

	addresses := make([]string, 0, len(prefixes)*254)
	for _, prefix := range prefixes {
		for host := 1; host <= 254; host++ {
			addresses = append(addresses, fmt.Sprintf("%s%d", prefix, host))
		}
	}

	client := &http.Client{Timeout: s.config.ProbeTimeout}
	found := make(map[string]domain.Device)
	var mu sync.Mutex

	probeChunks(ctx, addresses, s.config.ChunkSize, func(address string) {
		dev, ok := s.probeAddress(ctx, client, address)
		if !ok {
			return
		}
		mu.Lock()
		found[address] = dev
		mu.Unlock()
	})

	return found
}

// probeChunks runs fn over addresses with at most chunkSize calls in flight,
// one full chunk at a time.
func probeChunks(ctx context.Context, addresses []string, chunkSize int, fn func(string)) {
	for start := 0; start < len(addresses); start += chunkSize {
		if ctx.Err() != nil {
			return
		}
		end := start + chunkSize
		if end > len(addresses) {
			end = len(addresses)
		}

		var wg sync.WaitGroup
		for _, address := range addresses[start:end] {
			wg.Add(1)
			go func(addr string) {
				defer wg.Done()
				fn(addr)
			}(address)
		}
		wg.Wait()
	}
}

// probeAddress fetches and parses the info document for one address. Any
// failure (timeout, refusal, non-200, unrecognized body) yields no result.
func (s *Service) probeAddress(ctx context.Context, client *http.Client, address string) (domain.Device, bool) {
	url := fmt.Sprintf("http://%s:%d/query/device-info", address, s.config.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Device{}, false
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.Device{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return domain.Device{}, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !strings.Contains(string(body), device.InfoMarker) {
		return domain.Device{}, false
	}

	dev, err := device.ParseInfo(body, address)
	if err != nil {
		return domain.Device{}, false
	}
	return dev, true
}

// candidatePrefixes derives /24 prefixes from the machine's own non-loopback
// IPv4 interfaces and puts them ahead of the common private ranges. Own
// prefixes take priority by being probed first.
func candidatePrefixes() []string {
	var own []string
	seen := make(map[string]struct{})

	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || ip.IsLoopback() {
				continue
			}
			prefix := fmt.Sprintf("%d.%d.%d.", ip[0], ip[1], ip[2])
			if _, dup := seen[prefix]; !dup {
				seen[prefix] = struct{}{}
				own = append(own, prefix)
			}
		}
	}

	for _, prefix := range commonPrefixes {
		if _, dup := seen[prefix]; !dup {
			seen[prefix] = struct{}{}
			own = append(own, prefix)
		}
	}
	return own
}
