package shell

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keelhaul-sec/keelhaul/internal/arch"
	"github.com/keelhaul-sec/keelhaul/internal/logging"
	"github.com/keelhaul-sec/keelhaul/internal/profile"
)

// DefaultFailurePatterns are the substrings that mark a command response as
// a failure on stock U-Boot builds. A dispatcher can be created with a
// different set for targets with customized error reporting.
var DefaultFailurePatterns = []string{
	"data abort",
	"## Error",
	" ERROR",
	"Unknown command",
	"Usage:",
}

// DefaultInterruptTimeout bounds how long recovery loops keep sending the
// interrupt character before giving up.
const DefaultInterruptTimeout = 30 * time.Second

// Console is the console surface the dispatcher drives. *console.Console
// satisfies it.
type Console interface {
	SendCommand(ctx context.Context, cmd string, readResponse bool) (string, error)
	Interrupt(ctx context.Context, timeout time.Duration) (string, error)
}

// Options configures dispatcher construction. The permission flags are
// captured once and cannot be changed on a live dispatcher; operations that
// can brick or reboot a target stay refused for its whole lifetime unless
// opted into up front.
type Options struct {
	// AllowDeploy permits writing and executing payloads in target RAM.
	AllowDeploy bool

	// AllowReboot permits resetting the target.
	AllowReboot bool

	// FailurePatterns overrides DefaultFailurePatterns when non-nil.
	FailurePatterns []string

	Logger *zap.Logger
}

// Dispatcher issues commands to a bootloader shell and interprets the
// responses. It is the single place command strings are built and the
// single place failure detection happens; higher layers (register readers,
// payload deployment) go through it rather than the console.
//
// Like the Console it wraps, a Dispatcher is a single serial conversation
// and is not safe for concurrent use.
type Dispatcher struct {
	console  Console
	arch     *arch.Architecture
	prof     *profile.Profile
	patterns []string
	logger   *zap.Logger

	allowDeploy bool
	allowReboot bool
}

// New creates a dispatcher over an interrupted, prompt-ready console.
func New(c Console, a *arch.Architecture, prof *profile.Profile, opts Options) *Dispatcher {
	patterns := opts.FailurePatterns
	if patterns == nil {
		patterns = DefaultFailurePatterns
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if prof == nil {
		prof = profile.New(a.Name())
	}
	prof.AllowDeploy = opts.AllowDeploy
	prof.AllowReboot = opts.AllowReboot
	return &Dispatcher{
		console:     c,
		arch:        a,
		prof:        prof,
		patterns:    patterns,
		logger:      logger,
		allowDeploy: opts.AllowDeploy,
		allowReboot: opts.AllowReboot,
	}
}

// Arch returns the target architecture.
func (d *Dispatcher) Arch() *arch.Architecture { return d.arch }

// Profile returns the dispatcher's device profile. The dispatcher updates
// it as it learns about the target.
func (d *Dispatcher) Profile() *profile.Profile { return d.prof }

// AllowDeploy reports whether payload deployment was opted into.
func (d *Dispatcher) AllowDeploy() bool { return d.allowDeploy }

// AllowReboot reports whether resetting the target was opted into. This
// also gates operations that crash the target on purpose, since a crash
// ends in a reset.
func (d *Dispatcher) AllowReboot() bool { return d.allowReboot }

// Execute sends a command and returns its response without failure
// checking. Callers that expect the command to succeed want SendCommand.
func (d *Dispatcher) Execute(ctx context.Context, cmd string) (string, error) {
	logging.LogCommand(cmd)
	return d.console.SendCommand(ctx, cmd, true)
}

// SendCommand sends a command, reads its response, and checks the response
// against the failure patterns. A matching response yields an
// OperationFailedError carrying the full response text.
func (d *Dispatcher) SendCommand(ctx context.Context, cmd string) (string, error) {
	resp, err := d.Execute(ctx, cmd)
	if err != nil {
		return "", err
	}
	for _, pattern := range d.patterns {
		if strings.Contains(resp, pattern) {
			d.logger.Warn("Command failed on target",
				zap.String("command", cmd),
				zap.String("matched", pattern))
			logging.LogResponse(cmd, resp, false)
			return "", &OperationFailedError{Command: cmd, Response: resp}
		}
	}
	logging.LogResponse(cmd, resp, true)
	return resp, nil
}

// Interrupt regains a quiescent prompt, interrupting whatever the target is
// doing. The accumulated console output is returned.
func (d *Dispatcher) Interrupt(ctx context.Context) (string, error) {
	return d.console.Interrupt(ctx, DefaultInterruptTimeout)
}

// Reboot resets the target. It requires the AllowReboot opt-in and does not
// wait for the target to come back; the caller owns reconnection.
func (d *Dispatcher) Reboot(ctx context.Context) error {
	if !d.allowReboot {
		return &PermissionError{Operation: "rebooting the target", Flag: "--allow-reboot"}
	}
	d.logger.Info("Resetting target")

	// No response read: the shell does not return from reset.
	_, err := d.console.SendCommand(ctx, "reset", false)
	return err
}
