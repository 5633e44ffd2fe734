package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetLoggerNeverNil(t *testing.T) {
	logger = nil
	if GetLogger() == nil {
		t.Fatal("GetLogger must fall back to a usable logger")
	}
}

func TestHexDumpTruncation(t *testing.T) {
	if got := hexDump(nil); got != "" {
		t.Errorf("empty input: %q", got)
	}
	if got := hexDump([]byte{0xde, 0xad}); got != "dead" {
		t.Errorf("short input: %q", got)
	}

	long := bytes.Repeat([]byte{0xab}, 300)
	got := hexDump(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long input not truncated: %q", got[:32])
	}
	if len(got) != 256*2+3 {
		t.Errorf("unexpected truncated length: %d", len(got))
	}
}

func TestAsciiDumpMasksUnprintable(t *testing.T) {
	got := asciiDump([]byte("=> \x03ok\x00"))
	if got != "=> .ok." {
		t.Errorf("unexpected ascii dump: %q", got)
	}
}

func TestLogHelpersSilentByDefault(t *testing.T) {
	// The console traffic taps run on every wire read and write; with the
	// default silent logger they must be safe no-ops.
	logger = nil
	LogCommand("md.l 0 1")
	LogResponse("md.l 0 1", "00000000: deadbeef    ....\n", true)
	LogRawBytes("Console read", []byte{0x01, 0x02})
}
