package profile

import (
	"sort"
	"time"
)

// FormatVersion is the on-disk profile format version.
const FormatVersion = 1

// Profile captures what has been learned about a target device so later
// sessions can skip re-inspection. Everything in it is a cache: any field
// may be empty, and the shell layer repopulates fields on demand.
type Profile struct {
	FormatVersion int `yaml:"format_version"`

	// Device is the transport URI the profile was captured from.
	Device string `yaml:"device,omitempty"`

	// Arch names the target architecture (see the arch package).
	Arch string `yaml:"arch"`

	// Prompt is the shell prompt observed on the console.
	Prompt string `yaml:"prompt,omitempty"`

	// Version is the bootloader version banner.
	Version string `yaml:"version,omitempty"`

	// Commands maps command names to their help text, as reported by the
	// target's help listing.
	Commands map[string]*Command `yaml:"commands,omitempty"`

	// Env is the target's environment as of the last inspection.
	Env map[string]string `yaml:"environment,omitempty"`

	// RegisterReader records which register read strategy last worked on
	// this target.
	RegisterReader string `yaml:"register_reader,omitempty"`

	// PayloadBase is the RAM address payloads are staged at.
	PayloadBase uint64 `yaml:"payload_base,omitempty"`

	// AllowDeploy and AllowReboot record the risk opt-ins that were in
	// effect when the profile was saved. Informational only: a loaded
	// profile never grants permissions, only command-line flags do.
	AllowDeploy bool `yaml:"allow_deploy"`
	AllowReboot bool `yaml:"allow_reboot"`

	SavedAt     time.Time `yaml:"saved_at,omitempty"`
	ToolVersion string    `yaml:"tool_version,omitempty"`
}

// Command is one entry of the target's command table.
type Command struct {
	Summary string `yaml:"summary,omitempty"`
}

// New creates an empty profile for the given architecture.
func New(arch string) *Profile {
	return &Profile{
		FormatVersion: FormatVersion,
		Arch:          arch,
		Commands:      make(map[string]*Command),
		Env:           make(map[string]string),
	}
}

// HasCommand reports whether the target's command table is known to contain
// the named command. It returns false when the command table has not been
// captured yet; callers that need certainty should inspect first.
func (p *Profile) HasCommand(name string) bool {
	_, ok := p.Commands[name]
	return ok
}

// CommandNames returns the known command names in sorted order.
func (p *Profile) CommandNames() []string {
	names := make([]string, 0, len(p.Commands))
	for name := range p.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetCommands replaces the cached command table.
func (p *Profile) SetCommands(commands map[string]string) {
	p.Commands = make(map[string]*Command, len(commands))
	for name, summary := range commands {
		p.Commands[name] = &Command{Summary: summary}
	}
}

// SetEnv replaces the cached environment.
func (p *Profile) SetEnv(env map[string]string) {
	p.Env = make(map[string]string, len(env))
	for k, v := range env {
		p.Env[k] = v
	}
}
