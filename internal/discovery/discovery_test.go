package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestBridgeString(t *testing.T) {
	bridge := &Bridge{
		Name:     "bench-router-uart",
		Hostname: "lab-bridge.local.",
		IP:       "192.168.4.16",
		Port:     4444,
	}

	expected := `console bridge "bench-router-uart" (lab-bridge.local.) at 192.168.4.16:4444`
	if bridge.String() != expected {
		t.Errorf("String() = %v, want %v", bridge.String(), expected)
	}
}

func TestBridgeDeviceURI(t *testing.T) {
	bridge := &Bridge{IP: "10.0.0.5", Port: 2001}
	if got := bridge.DeviceURI(); got != "tcp://10.0.0.5:2001" {
		t.Errorf("DeviceURI() = %v", got)
	}
}

func TestBridgeGetMetadata(t *testing.T) {
	bridge := &Bridge{
		Metadata: map[string]string{
			"baud": "115200",
			"raw":  "",
		},
	}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{name: "existing key", key: "baud", expected: "115200"},
		{name: "bare key", key: "raw", expected: ""},
		{name: "non-existent key", key: "missing", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridge.GetMetadata(tt.key); got != tt.expected {
				t.Errorf("GetMetadata(%v) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}

	var nilBridge Bridge
	if nilBridge.GetMetadata("anything") != "" {
		t.Error("nil metadata map must answer with empty string")
	}
}

func TestParseServiceEntry(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "bench-router-uart"},
		HostName:      "lab-bridge.local.",
		Port:          4444,
		Text:          []string{"baud=115200", "raw"},
		AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
	}

	bridge := parseServiceEntry(entry)
	if bridge == nil {
		t.Fatal("expected a bridge")
	}
	if bridge.Name != "bench-router-uart" {
		t.Errorf("Name = %v", bridge.Name)
	}
	if bridge.IP != "192.168.4.16" {
		t.Errorf("IP = %v", bridge.IP)
	}
	if bridge.Port != 4444 {
		t.Errorf("Port = %v", bridge.Port)
	}
	if bridge.GetMetadata("baud") != "115200" {
		t.Errorf("Metadata = %v", bridge.Metadata)
	}
	if bridge.DiscoveredAt.IsZero() {
		t.Error("DiscoveredAt not set")
	}
}

func TestParseServiceEntryRejectsIncomplete(t *testing.T) {
	noAddr := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "x"},
		Port:          4444,
	}
	if parseServiceEntry(noAddr) != nil {
		t.Error("entry without an address must be rejected")
	}

	noPort := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "x"},
		AddrIPv4:      []net.IP{net.ParseIP("10.0.0.1")},
	}
	if parseServiceEntry(noPort) != nil {
		t.Error("entry without a port must be rejected")
	}
}

func TestParseServiceEntryIPv6Fallback(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "v6-only"},
		Port:          4444,
		AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
	}

	bridge := parseServiceEntry(entry)
	if bridge == nil {
		t.Fatal("expected a bridge")
	}
	if bridge.IP != "fe80::1" {
		t.Errorf("IP = %v", bridge.IP)
	}
}
