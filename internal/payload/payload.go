package payload

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/keelhaul-sec/keelhaul/internal/shell"
)

// payloadAlign is the alignment payloads are staged at within the staging
// region. Generous enough for any instruction alignment requirement the
// supported architectures have.
const payloadAlign = 16

// returnCode matches the termination line the go command prints, e.g.
// "## Application terminated, rc = 0x2a".
var returnCode = regexp.MustCompile(`##[\w\s,]+rc = 0x([0-9a-fA-F]+)`)

// entry is one registered payload and its staging state.
type entry struct {
	data     []byte
	offset   uint64
	deployed bool
}

// Registry stages payload binaries in target RAM and executes them via the
// go command. Payloads are registered as raw machine code for the target
// architecture; the registry assigns each a fixed offset within the staging
// region, writes it on first use, and remembers what is already resident so
// repeated executions skip the (slow, console-driven) write.
type Registry struct {
	d       *shell.Dispatcher
	base    uint64
	next    uint64
	entries map[string]*entry
	logger  *zap.Logger
}

// NewRegistry creates a registry staging payloads at base. A zero base
// falls back to the profile's recorded staging address; the chosen base is
// written back to the profile.
func NewRegistry(d *shell.Dispatcher, base uint64, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if base == 0 {
		base = d.Profile().PayloadBase
	}
	d.Profile().PayloadBase = base
	return &Registry{
		d:       d,
		base:    base,
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds a payload binary under the given name and assigns its
// staging offset. Nothing is written to the target until Deploy or Run.
func (r *Registry) Register(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("payload %q is empty", name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("payload %q is already registered", name)
	}

	r.entries[name] = &entry{data: data, offset: r.next}
	r.next += (uint64(len(data)) + payloadAlign - 1) &^ uint64(payloadAlign-1)
	return nil
}

// Has reports whether a payload is registered under the given name.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered payload names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Address returns the target address a payload is (or will be) staged at.
func (r *Registry) Address(name string) (uint64, error) {
	e, ok := r.entries[name]
	if !ok {
		return 0, fmt.Errorf("no payload registered as %q", name)
	}
	if r.base == 0 {
		return 0, fmt.Errorf("no payload staging address configured")
	}
	return r.base + e.offset, nil
}

// Deploy writes a payload into target RAM. It requires the deploy opt-in;
// when the gate is closed nothing is sent to the target. Payloads already
// resident are skipped unless force is set. The staged address is returned.
func (r *Registry) Deploy(ctx context.Context, name string, force bool) (uint64, error) {
	if !r.d.AllowDeploy() {
		return 0, &shell.PermissionError{
			Operation: "deploying payloads to the target",
			Flag:      "--allow-deploy",
		}
	}

	addr, err := r.Address(name)
	if err != nil {
		return 0, err
	}
	e := r.entries[name]
	if e.deployed && !force {
		return addr, nil
	}

	r.logger.Info("Deploying payload",
		zap.String("payload", name),
		zap.Uint64("addr", addr),
		zap.Int("size", len(e.data)))

	if err := r.d.WriteMemory(ctx, addr, e.data); err != nil {
		return 0, err
	}
	r.flushCaches(ctx)
	e.deployed = true
	return addr, nil
}

// flushCaches pushes the freshly written payload out of the data cache and
// drops stale instruction cache contents, where the target has the
// commands for it. Failures are logged and ignored: targets without cache
// maintenance commands generally run with caches disabled.
func (r *Registry) flushCaches(ctx context.Context) {
	for _, cmd := range []string{"dcache flush", "icache invalidate"} {
		name, _, _ := strings.Cut(cmd, " ")
		ok, err := r.d.HasCommand(ctx, name)
		if err != nil || !ok {
			continue
		}
		if _, err := r.d.SendCommand(ctx, cmd); err != nil {
			r.logger.Debug("Cache maintenance failed", zap.String("command", cmd), zap.Error(err))
		}
	}
}

// InvalidateDeployments forgets which payloads are resident. Call after
// anything that may have clobbered RAM contents, a reboot above all.
func (r *Registry) InvalidateDeployments() {
	for _, e := range r.entries {
		e.deployed = false
	}
}

// Run deploys a payload if needed and executes it, returning its exit
// code and the raw console output of the execution. Arguments are passed
// to the go command in hex.
func (r *Registry) Run(ctx context.Context, name string, args ...uint64) (uint64, string, error) {
	addr, err := r.Deploy(ctx, name, false)
	if err != nil {
		return 0, "", err
	}
	return r.RunAt(ctx, addr, args...)
}

// RunAt executes already-resident code at the given address via the go
// command. It returns the exit code and the raw console output, which
// contains everything the payload itself printed.
func (r *Registry) RunAt(ctx context.Context, addr uint64, args ...uint64) (uint64, string, error) {
	if !r.d.AllowDeploy() {
		return 0, "", &shell.PermissionError{
			Operation: "executing payloads on the target",
			Flag:      "--allow-deploy",
		}
	}

	cmd := fmt.Sprintf("go %x", addr)
	for _, arg := range args {
		cmd += fmt.Sprintf(" %x", arg)
	}

	// Unchecked send: the payload's own output may contain anything,
	// including strings that look like shell failures.
	resp, err := r.d.Execute(ctx, cmd)
	if err != nil {
		return 0, "", err
	}

	m := returnCode.FindStringSubmatch(resp)
	if m == nil {
		return 0, resp, fmt.Errorf("no return code in go output: %q", resp)
	}
	rc, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return 0, resp, fmt.Errorf("bad return code in go output: %w", err)
	}

	r.logger.Debug("Executed payload", zap.Uint64("addr", addr), zap.Uint64("rc", rc))
	return rc, resp, nil
}
