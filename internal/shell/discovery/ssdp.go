package discovery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Multicast Probe
// =============================================================================

// multicastProbe sends a single search datagram to the discovery group and
// collects replies for the configured window. Each reply advertising the
// search target carries a location URL whose host is dereferenced for a
// device-info document. Malformed or unreachable replies are dropped.
//
// Only the socket setup can fail the probe; everything after that degrades to
// an empty result.
func (s *Service) multicastProbe(ctx context.Context) (map[string]domain.Device, error) {
	group, err := net.ResolveUDPAddr("udp4", s.config.MulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}
	defer conn.Close()

	request := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + s.config.MulticastAddr,
		`MAN: "ssdp:discover"`,
		"ST: " + s.config.SearchTarget,
		"MX: 3",
		"", "",
	}, "\r\n")

	if _, err := conn.WriteTo([]byte(request), group); err != nil {
		return nil, fmt.Errorf("send search datagram: %w", err)
	}

	deadline := time.Now().Add(s.config.Window)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set discovery deadline: %w", err)
	}

	found := make(map[string]domain.Device)
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			break
		}
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline reached or socket closed; the window is over.
			break
		}

		address, ok := s.parseReply(buf[:n])
		if !ok {
			s.logger.Debug("ignoring discovery reply", "from", from.String())
			continue
		}
		if _, seen := found[address]; seen {
			continue
		}

		dev, err := s.info.FetchInfo(ctx, address)
		if err != nil {
			s.logger.Debug("device info fetch failed", "address", address, "error", err)
			continue
		}
		found[address] = dev
	}

	return found, nil
}

// parseReply extracts the device address from a search reply. Returns false
// when the reply is malformed or advertises a different service type.
func (s *Service) parseReply(raw []byte) (string, bool) {
	reader := textproto.NewReader(bufio.NewReader(strings.NewReader(string(raw))))

	status, err := reader.ReadLine()
	if err != nil || !strings.Contains(status, "200") {
		return "", false
	}
	headers, err := reader.ReadMIMEHeader()
	if err != nil {
		return "", false
	}

	if !strings.EqualFold(headers.Get("ST"), s.config.SearchTarget) {
		return "", false
	}

	location := headers.Get("LOCATION")
	if location == "" {
		return "", false
	}
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := u.Host
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		host = h
	}
	return host, true
}
