package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")

	p := New("arm")
	p.Device = "tcp://192.168.0.10:4444"
	p.Prompt = "=> "
	p.Version = "U-Boot 2020.04 (Jul 01 2020 - 12:00:00 +0000)"
	p.RegisterReader = "crash_md"
	p.PayloadBase = 0x84000000
	p.AllowDeploy = true
	p.AllowReboot = false
	p.SetCommands(map[string]string{
		"md":    "memory display",
		"mw":    "memory write (fill)",
		"crc32": "checksum calculation",
	})
	p.SetEnv(map[string]string{
		"bootdelay": "2",
		"loadaddr":  "0x82000000",
	})

	if err := p.Save(path); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if loaded.Arch != "arm" || loaded.Prompt != "=> " {
		t.Errorf("basic fields lost: %+v", loaded)
	}
	if loaded.PayloadBase != 0x84000000 {
		t.Errorf("payload base lost: %#x", loaded.PayloadBase)
	}
	if !loaded.HasCommand("crc32") {
		t.Error("command table lost")
	}
	if loaded.Commands["md"].Summary != "memory display" {
		t.Errorf("command summary lost: %+v", loaded.Commands["md"])
	}
	if loaded.Env["loadaddr"] != "0x82000000" {
		t.Errorf("environment lost: %v", loaded.Env)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("saved-at timestamp not recorded")
	}
	if !loaded.AllowDeploy || loaded.AllowReboot {
		t.Errorf("risk flags lost: deploy=%v reboot=%v", loaded.AllowDeploy, loaded.AllowReboot)
	}
}

func TestSaveAlwaysRecordsRiskFlags(t *testing.T) {
	// The flags must appear in the document even when both are false, so a
	// reader of the file can tell what the session was permitted to do.
	path := filepath.Join(t.TempDir(), "target.yaml")
	if err := New("arm").Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(data)
	if !strings.Contains(doc, "allow_deploy: false") {
		t.Errorf("allow_deploy missing from saved profile:\n%s", doc)
	}
	if !strings.Contains(doc, "allow_reboot: false") {
		t.Errorf("allow_reboot missing from saved profile:\n%s", doc)
	}
}

func TestSaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profiles", "target.yaml")

	if err := New("arm").Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("profile not written: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("format_version: 99\narch: arm\n"), 0600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported profile version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestHasCommandOnEmptyProfile(t *testing.T) {
	if New("arm").HasCommand("md") {
		t.Error("empty profile must not claim command support")
	}
}

func TestCommandNamesSorted(t *testing.T) {
	p := New("arm")
	p.SetCommands(map[string]string{"mw": "", "crc32": "", "md": ""})

	names := p.CommandNames()
	want := []string{"crc32", "md", "mw"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")

	path, err := DefaultPath("bench-router")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join("/tmp/xdg-test", "keelhaul", "profiles", "bench-router.yaml")
	if path != want {
		t.Errorf("expected %q, got %q", want, path)
	}
}
