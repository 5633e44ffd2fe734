package payload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keelhaul-sec/keelhaul/internal/arch"
	"github.com/keelhaul-sec/keelhaul/internal/profile"
	"github.com/keelhaul-sec/keelhaul/internal/shell"
)

const testHelp = `go      - start application at address 'addr'
help    - print command description/usage
md      - memory display
mw      - memory write (fill)
`

type fakeConsole struct {
	responses map[string]string
	sent      []string
}

func (f *fakeConsole) SendCommand(_ context.Context, cmd string, readResponse bool) (string, error) {
	f.sent = append(f.sent, cmd)
	if !readResponse {
		return "", nil
	}
	if resp, ok := f.responses[cmd]; ok {
		return resp, nil
	}
	return "Unknown command\n", nil
}

func (f *fakeConsole) Interrupt(context.Context, time.Duration) (string, error) { return "", nil }

func (f *fakeConsole) sentWithPrefix(prefix string) []string {
	var out []string
	for _, cmd := range f.sent {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

func testRegistry(t *testing.T, fc *fakeConsole, opts shell.Options, base uint64) *Registry {
	t.Helper()
	a, err := arch.Get("arm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewRegistry(shell.New(fc, a, profile.New("arm"), opts), base, nil)
}

func TestRegisterAndAddresses(t *testing.T) {
	r := testRegistry(t, &fakeConsole{}, shell.Options{}, 0x84000000)

	if err := r.Register("first", []byte("abcdef")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("second", []byte{0x90}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("first", []byte("dup")); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := r.Register("empty", nil); err == nil {
		t.Error("empty payload must be rejected")
	}

	addr, err := r.Address("first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x84000000 {
		t.Errorf("first payload address: %#x", addr)
	}

	// Offsets are aligned, so the 6-byte first payload still puts the
	// second one 16 bytes in.
	addr, err = r.Address("second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x84000010 {
		t.Errorf("second payload address: %#x", addr)
	}

	if !r.Has("first") || r.Has("absent") {
		t.Error("Has answers wrong")
	}
}

func TestDeployGatedWithoutOptIn(t *testing.T) {
	fc := &fakeConsole{responses: map[string]string{"help": testHelp}}
	r := testRegistry(t, fc, shell.Options{}, 0x84000000)

	if err := r.Register("p", []byte("abcdef")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := r.Deploy(context.Background(), "p", false)
	var permErr *shell.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if len(fc.sent) != 0 {
		t.Errorf("gated deploy must not touch the target, sent %v", fc.sent)
	}

	_, _, err = r.RunAt(context.Background(), 0x84000000, 0x61)
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if len(fc.sent) != 0 {
		t.Errorf("gated execute must not touch the target, sent %v", fc.sent)
	}
}

func TestDeployWritesAndSkipsWhenResident(t *testing.T) {
	fc := &fakeConsole{responses: map[string]string{
		"help":                 testHelp,
		"mw.w 84000000 6261 1": "",
		"mw.w 84000002 6463 1": "",
		"mw.w 84000004 6665 1": "",
	}}
	r := testRegistry(t, fc, shell.Options{AllowDeploy: true}, 0x84000000)

	if err := r.Register("p", []byte("abcdef")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	addr, err := r.Deploy(context.Background(), "p", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x84000000 {
		t.Errorf("unexpected address: %#x", addr)
	}
	if writes := fc.sentWithPrefix("mw."); len(writes) != 3 {
		t.Errorf("expected 3 memory writes, got %v", writes)
	}

	// Resident payload: no further writes.
	if _, err := r.Deploy(context.Background(), "p", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writes := fc.sentWithPrefix("mw."); len(writes) != 3 {
		t.Errorf("redeploy without force must skip writes, got %v", writes)
	}

	// Forced: written again.
	if _, err := r.Deploy(context.Background(), "p", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writes := fc.sentWithPrefix("mw."); len(writes) != 6 {
		t.Errorf("forced redeploy must rewrite, got %v", writes)
	}
}

func TestDeployAfterInvalidation(t *testing.T) {
	fc := &fakeConsole{responses: map[string]string{
		"help":                 testHelp,
		"mw.w 84000000 6261 1": "",
		"mw.w 84000002 6463 1": "",
		"mw.w 84000004 6665 1": "",
	}}
	r := testRegistry(t, fc, shell.Options{AllowDeploy: true}, 0x84000000)

	if err := r.Register("p", []byte("abcdef")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Deploy(context.Background(), "p", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.InvalidateDeployments()
	if _, err := r.Deploy(context.Background(), "p", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writes := fc.sentWithPrefix("mw."); len(writes) != 6 {
		t.Errorf("invalidated payload must be rewritten, got %v", writes)
	}
}

func TestDeployFlushesCaches(t *testing.T) {
	help := testHelp + "dcache  - enable or disable data cache\nicache  - enable or disable instruction cache\n"
	fc := &fakeConsole{responses: map[string]string{
		"help":                 help,
		"mw.w 84000000 6261 1": "",
		"dcache flush":         "",
		"icache invalidate":    "",
	}}
	r := testRegistry(t, fc, shell.Options{AllowDeploy: true}, 0x84000000)

	if err := r.Register("p", []byte("ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Deploy(context.Background(), "p", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fc.sentWithPrefix("dcache flush")) != 1 {
		t.Errorf("data cache not flushed: %v", fc.sent)
	}
	if len(fc.sentWithPrefix("icache invalidate")) != 1 {
		t.Errorf("instruction cache not invalidated: %v", fc.sent)
	}
}

func TestRunDeploysAndParsesReturnCode(t *testing.T) {
	fc := &fakeConsole{responses: map[string]string{
		"help":                 testHelp,
		"mw.w 84000000 6261 1": "",
		"go 84000000 61": "## Starting application at 0x84000000 ...\n" +
			"## Application terminated, rc = 0x12345678\n",
	}}
	r := testRegistry(t, fc, shell.Options{AllowDeploy: true}, 0x84000000)

	if err := r.Register("p", []byte("ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc, out, err := r.Run(context.Background(), "p", 0x61)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc != 0x12345678 {
		t.Errorf("unexpected return code: %#x", rc)
	}

	// The raw output is part of the result: it is where the payload's own
	// printed data ends up.
	if !strings.Contains(out, "## Starting application at 0x84000000") {
		t.Errorf("execution output lost: %q", out)
	}
}

func TestRunAtNoReturnCode(t *testing.T) {
	fc := &fakeConsole{responses: map[string]string{
		"go 84000000": "## Starting application at 0x84000000 ...\n",
	}}
	r := testRegistry(t, fc, shell.Options{AllowDeploy: true}, 0x84000000)

	if _, _, err := r.RunAt(context.Background(), 0x84000000); err == nil {
		t.Fatal("expected error when the go output has no return code")
	}
}

func TestBaseFallsBackToProfile(t *testing.T) {
	a, err := arch.Get("arm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prof := profile.New("arm")
	prof.PayloadBase = 0x88000000
	d := shell.New(&fakeConsole{}, a, prof, shell.Options{})

	r := NewRegistry(d, 0, nil)
	if err := r.Register("p", []byte{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	addr, err := r.Address("p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x88000000 {
		t.Errorf("profile base ignored: %#x", addr)
	}
}

func TestAddressWithoutBase(t *testing.T) {
	r := testRegistry(t, &fakeConsole{}, shell.Options{}, 0)
	if err := r.Register("p", []byte{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Address("p"); err == nil {
		t.Fatal("expected error with no staging address configured")
	}
}
