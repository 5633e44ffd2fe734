package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type console bridges advertise.
	// ser2net and comparable serial-over-TCP daemons register as telnet
	// services.
	ServiceType = "_telnet._tcp"

	// ServiceDomain is the mDNS domain (typically "local.").
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery.
	DefaultScanTimeout = 10 * time.Second
)

// Scanner handles mDNS console bridge discovery.
type Scanner struct {
	// Timeout is the maximum time to wait for discovery.
	Timeout time.Duration
}

// NewScanner creates an mDNS scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers all console bridges on the local network, collecting
// advertisements until the timeout elapses.
func (s *Scanner) Scan(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	bridges := make([]*Bridge, 0)
	done := make(chan struct{})

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			if bridge := parseServiceEntry(entry); bridge != nil {
				bridges = append(bridges, bridge)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done

	return bridges, nil
}

// Find waits for a bridge whose instance name matches name, returning as
// soon as it appears rather than scanning out the full timeout.
func (s *Scanner) Find(ctx context.Context, name string) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Bridge, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			bridge := parseServiceEntry(entry)
			if bridge != nil && bridge.Name == name {
				found <- bridge
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case bridge := <-found:
		return bridge, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("console bridge %q not found within timeout", name)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Bridge.
// Returns nil for entries missing an address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	// TXT records are "key=value", or a bare key.
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Bridge{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Scan is a convenience function to discover bridges with a custom timeout.
func Scan(ctx context.Context, timeout time.Duration) ([]*Bridge, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.Scan(ctx)
}
