package shell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// wordSuffix maps an access width in bytes to the command suffix selecting
// it (md.b, mw.l, and so on).
var wordSuffix = map[int]string{1: "b", 2: "w", 4: "l", 8: "q"}

// accessWidth picks the widest access the target supports that both the
// address and the length are aligned to. Wider accesses mean fewer console
// round trips, which dominate the cost of every memory operation.
func (d *Dispatcher) accessWidth(addr, count uint64) int {
	max := 4
	if d.arch.Supports64BitData() {
		max = 8
	}
	for size := max; size > 1; size /= 2 {
		if addr%uint64(size) == 0 && count%uint64(size) == 0 {
			return size
		}
	}
	return 1
}

// ReadMemory reads count bytes of target memory at addr by parsing the
// hex dump the md command prints.
func (d *Dispatcher) ReadMemory(ctx context.Context, addr, count uint64) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}

	size := d.accessWidth(addr, count)
	words := count / uint64(size)
	cmd := fmt.Sprintf("md.%s %x %x", wordSuffix[size], addr, words)

	resp, err := d.SendCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}

	data, err := parseHexDump(resp, size, d.encodeWord)
	if err != nil {
		return nil, &ParseError{Command: cmd, Response: resp, Reason: err.Error()}
	}
	if uint64(len(data)) < count {
		return nil, &ParseError{Command: cmd, Response: resp,
			Reason: fmt.Sprintf("short dump: %d of %d bytes", len(data), count)}
	}

	d.logger.Debug("Read target memory",
		zap.Uint64("addr", addr), zap.Uint64("count", count), zap.Int("width", size))
	return data[:count], nil
}

func (d *Dispatcher) encodeWord(value uint64, size int) ([]byte, error) {
	return d.arch.EncodeWord(value, size)
}

// parseHexDump extracts the data bytes from md output. Each line is
// "<addr>: <word> <word> ...    <ascii>"; the ASCII column is separated
// from the words by a run of spaces and is ignored. Word values are
// re-encoded in target byte order to recover the underlying bytes.
func parseHexDump(dump string, size int, encode func(uint64, int) ([]byte, error)) ([]byte, error) {
	var data []byte
	digits := size * 2

	for _, line := range strings.Split(dump, "\n") {
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		// The ASCII rendering follows the words after a multi-space gap.
		if i := strings.Index(rest, "    "); i >= 0 {
			rest = rest[:i]
		}

		for _, field := range strings.Fields(rest) {
			if len(field) != digits {
				return nil, fmt.Errorf("unexpected field %q for %d-byte words", field, size)
			}
			value, err := strconv.ParseUint(field, 16, 64)
			if err != nil {
				return nil, fmt.Errorf("bad word %q: %w", field, err)
			}
			word, err := encode(value, size)
			if err != nil {
				return nil, err
			}
			data = append(data, word...)
		}
	}
	if data == nil {
		return nil, fmt.Errorf("no data lines in dump")
	}
	return data, nil
}

// WriteMemory writes data to target memory at addr, one mw command per
// word. This is slow (a full console round trip per word) but needs nothing
// beyond the md/mw pair; use payload staging or a stratagem-based writer
// for bulk transfers.
func (d *Dispatcher) WriteMemory(ctx context.Context, addr uint64, data []byte) error {
	remaining := data
	for len(remaining) > 0 {
		size := d.accessWidth(addr, uint64(len(remaining)))

		value, err := d.arch.DecodeWord(remaining[:size])
		if err != nil {
			return err
		}
		cmd := fmt.Sprintf("mw.%s %x %x 1", wordSuffix[size], addr, value)
		if _, err := d.SendCommand(ctx, cmd); err != nil {
			return err
		}

		addr += uint64(size)
		remaining = remaining[size:]
	}

	d.logger.Debug("Wrote target memory",
		zap.Uint64("addr", addr-uint64(len(data))), zap.Int("count", len(data)))
	return nil
}
