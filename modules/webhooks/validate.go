package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// hostResolver resolves a hostname to IP addresses. Injectable so tests can
// exercise the disallowed-host logic without real DNS.
type hostResolver func(ctx context.Context, host string) ([]netip.Addr, error)

func defaultResolver(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// validateEventTypes rejects empty or blank event-type sets.
func validateEventTypes(eventTypes []string) error {
	if len(eventTypes) == 0 {
		return ErrEmptyEventTypes
	}
	for _, et := range eventTypes {
		if strings.TrimSpace(et) == "" {
			return fmt.Errorf("%w: event type cannot be blank", ErrEmptyEventTypes)
		}
	}
	return nil
}

// validateTargetURL enforces the transport and host rules for subscriber
// endpoints: https (http only when private URLs are allowed, for local
// development), and a host that does not resolve to loopback, link-local,
// private, or unspecified addresses. This blocks SSRF via registered
// webhook targets and runs before persistence, so invalid URLs never reach
// the delivery queue.
func (s *Service) validateTargetURL(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidTargetURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTargetURL, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !s.cfg.AllowPrivateURLs {
			return fmt.Errorf("%w: https is required", ErrInvalidTargetURL)
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTargetURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidTargetURL)
	}

	if s.cfg.AllowPrivateURLs {
		return nil
	}

	// IP literals are checked directly; hostnames are resolved and every
	// address must be publicly routable.
	if addr, err := netip.ParseAddr(host); err == nil {
		if isDisallowedAddr(addr) {
			return fmt.Errorf("%w: %s", ErrDisallowedHost, host)
		}
		return nil
	}

	addrs, err := s.resolver(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %w", ErrInvalidTargetURL, host, err)
	}
	for _, addr := range addrs {
		if isDisallowedAddr(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrDisallowedHost, host, addr)
		}
	}
	return nil
}

func isDisallowedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsPrivate() ||
		addr.IsUnspecified()
}

const secretPrefix = "whsec_"

// generateSecret returns a fresh signing secret with 256 bits of entropy.
// It is returned to the owner exactly once, in the creation response.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}
