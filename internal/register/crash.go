package register

import (
	"context"
	"fmt"
	"strings"

	"github.com/keelhaul-sec/keelhaul/internal/shell"
)

// DefaultCrashAddress is the address crash-based readers dereference to
// trigger a data abort. The top of the 32-bit address space is unmapped on
// the platforms these readers target; pass a different address via
// NewCrashReader for targets where it is not.
const DefaultCrashAddress uint64 = 0xfffffff0

// CrashReader reads registers by deliberately triggering a data abort and
// parsing the register dump the abort handler prints. The abort ends in a
// CPU reset, so this strategy requires the reboot opt-in; recovery is a
// plain interrupt loop that catches the shell again on the way back up.
type CrashReader struct {
	d         *shell.Dispatcher
	name      string
	command   string
	crashAddr uint64
	trigger   func(addr uint64) []string
}

// NewCrashReader builds a crash-based reader around one faulting command
// sequence. command is the shell command the sequence depends on; trigger
// produces the command lines that dereference the crash address. A zero
// crashAddr selects DefaultCrashAddress.
func NewCrashReader(d *shell.Dispatcher, name, command string, crashAddr uint64, trigger func(addr uint64) []string) *CrashReader {
	if crashAddr == 0 {
		crashAddr = DefaultCrashAddress
	}
	return &CrashReader{d: d, name: name, command: command, crashAddr: crashAddr, trigger: trigger}
}

func (r *CrashReader) Name() string { return r.name }

// Available requires the reboot opt-in (the crash resets the CPU) and the
// trigger command in the target's command table.
func (r *CrashReader) Available(ctx context.Context) (bool, error) {
	if !r.d.AllowReboot() {
		return false, nil
	}
	return r.d.HasCommand(ctx, r.command)
}

func (r *CrashReader) Read(ctx context.Context, reg string) (uint64, error) {
	if !r.d.AllowReboot() {
		return 0, &shell.PermissionError{
			Operation: "crash-based register reading",
			Flag:      "--allow-reboot",
		}
	}

	canonical, err := r.d.Arch().Register(reg)
	if err != nil {
		return 0, err
	}

	var dump strings.Builder
	for _, cmd := range r.trigger(r.crashAddr) {
		// No failure screening: the response is a crash dump on purpose.
		resp, err := r.d.Execute(ctx, cmd)
		dump.WriteString(resp)
		if err != nil {
			return 0, err
		}
	}

	// The target is mid-reset; reclaim the shell before parsing so a
	// parse failure does not leave the session wedged.
	if out, err := r.d.Interrupt(ctx); err != nil {
		return 0, fmt.Errorf("target did not return after crash: %w", err)
	} else {
		dump.WriteString(out)
	}

	regs, err := r.d.Arch().ParseCrashRegisters(dump.String())
	if err != nil {
		return 0, err
	}
	value, ok := regs[canonical.Name]
	if !ok {
		return 0, fmt.Errorf("register %s not present in crash dump", canonical.Name)
	}
	return value, nil
}

// NewDefaultCrashReaders builds the built-in crash strategies, in
// preference order, for targets whose command table includes the
// corresponding commands.
func NewDefaultCrashReaders(d *shell.Dispatcher, crashAddr uint64) []Reader {
	hex := func(addr uint64) string { return fmt.Sprintf("%x", addr) }

	return []Reader{
		NewCrashReader(d, "crash_md", "md", crashAddr, func(addr uint64) []string {
			return []string{"md.l " + hex(addr) + " 1"}
		}),
		NewCrashReader(d, "crash_cp", "cp", crashAddr, func(addr uint64) []string {
			return []string{"cp.l " + hex(addr) + " " + hex(addr) + " 1"}
		}),
		NewCrashReader(d, "crash_itest", "itest", crashAddr, func(addr uint64) []string {
			return []string{"itest.l *" + hex(addr) + " == 0"}
		}),
		NewCrashReader(d, "crash_setexpr", "setexpr", crashAddr, func(addr uint64) []string {
			return []string{"setexpr.l _ *" + hex(addr)}
		}),
		NewCrashReader(d, "crash_fdt", "fdt", crashAddr, func(addr uint64) []string {
			// fdt addr only records the address; the header read faults.
			return []string{"fdt addr " + hex(addr), "fdt header"}
		}),
		NewCrashReader(d, "crash_crc32", "crc32", crashAddr, func(addr uint64) []string {
			return []string{"crc32 " + hex(addr) + " 4"}
		}),
	}
}
