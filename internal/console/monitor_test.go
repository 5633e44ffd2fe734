package console

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileMonitorRecordsTraffic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.bin")

	mon, err := NewFileMonitor(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mon.TargetWrite([]byte("printenv\n"))
	mon.TargetRead([]byte("bootdelay=2\n"))
	if err := mon.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "printenv\nbootdelay=2\n" {
		t.Errorf("unexpected transcript: %q", data)
	}
}

func TestChannelMonitorDropsWhenFull(t *testing.T) {
	mon := NewChannelMonitor(1)
	mon.TargetRead([]byte("a"))
	mon.TargetRead([]byte("b")) // queue full, must not block
	_ = mon.Close()

	var got []string
	for ev := range mon.Events() {
		got = append(got, string(ev.Data))
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected only the first event, got %v", got)
	}
}

func TestDialTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	for _, device := range []string{
		"tcp://" + ln.Addr().String(),
		ln.Addr().String(),
	} {
		tr, err := Dial(device)
		if err != nil {
			t.Fatalf("Dial(%q): %v", device, err)
		}
		select {
		case conn := <-accepted:
			conn.Close()
		case <-time.After(time.Second):
			t.Fatalf("Dial(%q): no connection accepted", device)
		}
		tr.Close()
	}
}

func TestDialUnsupportedScheme(t *testing.T) {
	_, err := Dial("ftp://example.com:21")
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestDialRefused(t *testing.T) {
	// Port reserved then released so nothing is listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial("tcp://" + addr)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
