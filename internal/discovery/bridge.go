package discovery

import (
	"fmt"
	"time"
)

// Bridge is a serial console bridge found on the network: a host (often a
// ser2net or similar box) exposing a target's UART over TCP.
type Bridge struct {
	// Name is the mDNS instance name, e.g. "bench-router-uart".
	Name string

	// Hostname is the mDNS hostname (e.g., "lab-bridge.local.").
	Hostname string

	// IP is the bridge's address, IPv4 preferred.
	IP string

	// Port is the TCP port the console is exposed on.
	Port int

	// Metadata contains the mDNS TXT record data. ser2net style bridges
	// often publish the serial parameters here ("baud=115200").
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered.
	DiscoveredAt time.Time
}

// String returns a human-readable description of the bridge.
func (b *Bridge) String() string {
	return fmt.Sprintf("console bridge %q (%s) at %s:%d", b.Name, b.Hostname, b.IP, b.Port)
}

// DeviceURI returns the transport URI to hand to the console layer.
func (b *Bridge) DeviceURI() string {
	return fmt.Sprintf("tcp://%s:%d", b.IP, b.Port)
}

// GetMetadata retrieves a TXT record value by key, or "" if not present.
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
