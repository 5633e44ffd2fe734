package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName     = "keelhaul"
	profilesDir = "profiles"
)

// ConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/keelhaul or $HOME/.config/keelhaul
//   - macOS: $HOME/.config/keelhaul
//   - Windows: %LOCALAPPDATA%\keelhaul
func ConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			return filepath.Join(userProfile, "AppData", "Local", appName), nil
		}
		return filepath.Join(localAppData, appName), nil

	default:
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			return filepath.Join(xdgConfigHome, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// DefaultPath returns the path a named profile is stored at under the
// configuration directory.
func DefaultPath(name string) (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, profilesDir, name+".yaml"), nil
}

// Load reads a profile from the given file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported profile version: %d (expected %d)", p.FormatVersion, FormatVersion)
	}

	if p.Commands == nil {
		p.Commands = make(map[string]*Command)
	}
	if p.Env == nil {
		p.Env = make(map[string]string)
	}
	return &p, nil
}

// Save writes the profile to the given file, creating parent directories as
// needed. The write is atomic: the data lands in a temporary file that is
// renamed over the target, so a crash never leaves a truncated profile.
func (p *Profile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	p.FormatVersion = FormatVersion
	p.SavedAt = time.Now()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	header := []byte(`# Keelhaul device profile.
# Cached knowledge about one target; safe to delete, it will be relearned.

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary profile file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
