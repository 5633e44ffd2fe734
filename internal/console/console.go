package console

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keelhaul-sec/keelhaul/internal/logging"
)

const (
	// ReadTimeoutEnvVar overrides the per-read idle timeout. Accepts a Go
	// duration string (e.g., "250ms"). Lowering it speeds up console-driven
	// memory operations; setting it too low truncates slow responses.
	ReadTimeoutEnvVar = "KEELHAUL_CONSOLE_TIMEOUT"

	// IntraCharEnvVar overrides the intra-character write delay. Some
	// targets drop input when their UART FIFO fills; pacing each byte
	// works around that at the cost of throughput.
	IntraCharEnvVar = "KEELHAUL_CONSOLE_INTRACHAR"

	// DefaultReadTimeout is the idle period after which a read cycle is
	// considered complete.
	DefaultReadTimeout = 150 * time.Millisecond

	// InterruptChar is the byte sent to interrupt the shell (Ctrl-C).
	InterruptChar = "\x03"

	// promptRepeatCount is how many consecutive identical single-line
	// responses prompt discovery requires before accepting a candidate.
	promptRepeatCount = 10

	// interruptIndicator is emitted by some shells when input is
	// interrupted; it is noise for prompt discovery.
	interruptIndicator = "<INTERRUPT>"
)

// Config holds Console construction parameters.
type Config struct {
	// Prompt is the shell's ready-for-input string. Leave empty to have
	// DiscoverPrompt determine it on first Interrupt.
	Prompt string

	// ReadTimeout is the idle period that terminates a read cycle.
	// Default: DefaultReadTimeout, overridable via KEELHAUL_CONSOLE_TIMEOUT.
	ReadTimeout time.Duration

	// IntraCharDelay, when positive, is the minimum delay inserted between
	// successive output bytes. Zero disables pacing.
	IntraCharDelay time.Duration
}

// DefaultConfig returns a Config with defaults applied, honoring the
// KEELHAUL_CONSOLE_TIMEOUT and KEELHAUL_CONSOLE_INTRACHAR environment
// variables.
func DefaultConfig() Config {
	cfg := Config{ReadTimeout: DefaultReadTimeout}

	if env := os.Getenv(ReadTimeoutEnvVar); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d > 0 {
			cfg.ReadTimeout = d
		}
	}
	if env := os.Getenv(IntraCharEnvVar); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d >= 0 {
			cfg.IntraCharDelay = d
		}
	}
	return cfg
}

// Console provides line-oriented access to a bootloader shell over a byte
// transport. It owns the transport exclusively and has no knowledge of any
// particular shell's command set; command semantics live in the shell
// package.
//
// Console methods are not safe for concurrent use: the shell is a single
// serial conversation and exactly one operation may be in flight at a time.
type Console struct {
	transport Transport
	device    string
	cfg       Config
	prompt    string
	mon       *asyncMonitor
	logger    *zap.Logger

	// pending holds bytes read from the transport but not yet consumed
	// by ReadLine.
	pending []byte
}

// New wraps an already-open transport. The Console takes ownership of it.
func New(t Transport, cfg Config, logger *zap.Logger) *Console {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		transport: t,
		cfg:       cfg,
		prompt:    cfg.Prompt,
		logger:    logger,
	}
}

// Open dials the given device URI (see Dial) and returns a Console over it.
func Open(device string, cfg Config, logger *zap.Logger) (*Console, error) {
	t, err := Dial(device)
	if err != nil {
		return nil, err
	}
	c := New(t, cfg, logger)
	c.device = device
	return c, nil
}

// AttachMonitor registers an observer for all console traffic. Any
// previously attached monitor is closed. Delivery is asynchronous and
// bounded; the monitor can never stall the session.
func (c *Console) AttachMonitor(m Monitor) {
	if c.mon != nil {
		_ = c.mon.close()
		c.mon = nil
	}
	if m != nil {
		c.mon = newAsyncMonitor(m)
	}
}

// Device returns the transport URI this console was opened with, if any.
func (c *Console) Device() string { return c.device }

// Prompt returns the shell prompt in use, or "" if not yet known.
func (c *Console) Prompt() string { return c.prompt }

// SetPrompt overrides the shell prompt used for completion detection.
func (c *Console) SetPrompt(prompt string) { c.prompt = prompt }

// notify forwards traffic to the attached monitor, if any.
func (c *Console) notify(dir Direction, data []byte) {
	if c.mon != nil {
		c.mon.enqueue(dir, data)
	}
}

// readChunk performs a single bounded read from the transport. It returns
// the data read (possibly empty) and whether the read ended due to the idle
// deadline rather than producing data. Transport failures are fatal.
func (c *Console) readChunk(idle time.Duration) (data []byte, timedOut bool, err error) {
	if err := c.transport.SetReadDeadline(time.Now().Add(idle)); err != nil {
		return nil, false, &TransportError{Op: "set-deadline", Device: c.device, Err: err}
	}

	buf := make([]byte, 4096)
	n, err := c.transport.Read(buf)
	if n > 0 {
		logging.LogRawBytes("Console read", buf[:n])
		c.notify(DirRead, buf[:n])
	}
	if err != nil {
		if isDeadlineExceeded(err) {
			return buf[:n], true, nil
		}
		return buf[:n], false, &TransportError{Op: "read", Device: c.device, Err: err}
	}
	return buf[:n], false, nil
}

// ReadAll reads from the console until it has been quiet for one idle
// period, and returns everything read (including any pending bytes from a
// previous partial line read), with line endings normalized.
func (c *Console) ReadAll(ctx context.Context) (string, error) {
	raw := c.pending
	c.pending = nil

	for {
		if err := ctx.Err(); err != nil {
			return normalize(raw), err
		}
		chunk, timedOut, err := c.readChunk(c.cfg.ReadTimeout)
		raw = append(raw, chunk...)
		if err != nil {
			return normalize(raw), err
		}
		if timedOut && len(chunk) == 0 {
			return normalize(raw), nil
		}
	}
}

// ReadLine blocks until a full line has been read or the timeout elapses.
// The returned line has its terminator stripped. On timeout a TimeoutError
// is returned; bytes read so far remain buffered for the next call.
func (c *Console) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		if i := indexNewline(c.pending); i >= 0 {
			line := c.pending[:i]
			c.pending = c.pending[i+1:]
			return strings.TrimRight(normalize(line), "\r"), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", &TimeoutError{Op: "read-line", Timeout: timeout}
		}
		idle := c.cfg.ReadTimeout
		if idle > remaining {
			idle = remaining
		}

		chunk, _, err := c.readChunk(idle)
		c.pending = append(c.pending, chunk...)
		if err != nil {
			return "", err
		}
	}
}

func indexNewline(data []byte) int {
	for i, b := range data {
		if b == '\n' {
			return i
		}
	}
	return -1
}

// normalize converts CRLF line endings to LF.
func normalize(data []byte) string {
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}

// Write sends the given text to the console verbatim. No line terminator is
// appended: single-keystroke interactions (interrupt characters, interactive
// memory-modify prompts) must not be newline terminated.
func (c *Console) Write(data string) error {
	return c.WriteRaw([]byte(data))
}

// WriteRaw sends raw bytes to the console, honoring the configured
// intra-character delay.
func (c *Console) WriteRaw(data []byte) error {
	logging.LogRawBytes("Console write", data)
	if c.cfg.IntraCharDelay <= 0 {
		if _, err := c.transport.Write(data); err != nil {
			return &TransportError{Op: "write", Device: c.device, Err: err}
		}
		c.notify(DirWrite, data)
		return nil
	}

	for i := range data {
		if i > 0 {
			time.Sleep(c.cfg.IntraCharDelay)
		}
		if _, err := c.transport.Write(data[i : i+1]); err != nil {
			return &TransportError{Op: "write", Device: c.device, Err: err}
		}
	}
	c.notify(DirWrite, data)
	return nil
}

// SendCommand writes a command line to the shell and, if readResponse is
// true, reads until the console goes quiet. The echoed command and the
// trailing prompt are stripped from the returned text.
//
// If one does not plan to use the response, keep readResponse true and
// ignore the return value; this keeps response data out of the read buffer.
func (c *Console) SendCommand(ctx context.Context, cmd string, readResponse bool) (string, error) {
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if err := c.Write(cmd); err != nil {
		return "", err
	}
	if !readResponse {
		return "", nil
	}

	resp, err := c.ReadAll(ctx)
	if err != nil {
		return "", err
	}

	resp = StripEchoedInput(cmd, resp)
	if c.prompt != "" && strings.HasSuffix(resp, c.prompt) {
		resp = resp[:len(resp)-len(c.prompt)]
	}
	return resp, nil
}

// Interrupt repeatedly sends the interrupt character, interleaved with
// reads, until the shell prompt reappears or the timeout elapses. This is
// the recovery path for commands stuck emitting output: the only reliable
// way out is to keep interrupting until a quiescent prompt is observed.
//
// If no prompt is configured yet, prompt discovery runs instead.
// The accumulated console output is returned on success.
func (c *Console) Interrupt(ctx context.Context, timeout time.Duration) (string, error) {
	if c.prompt == "" {
		c.logger.Info("No console prompt configured; attempting discovery")
		return c.DiscoverPrompt(ctx, timeout)
	}

	deadline := time.Now().Add(timeout)
	var accumulated strings.Builder

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return accumulated.String(), err
		}
		if err := c.Write(InterruptChar); err != nil {
			return accumulated.String(), err
		}

		resp, err := c.ReadAll(ctx)
		accumulated.WriteString(resp)
		if err != nil {
			return accumulated.String(), err
		}
		if strings.HasSuffix(accumulated.String(), c.prompt) {
			return accumulated.String(), nil
		}
	}

	return accumulated.String(), &TimeoutError{Op: "interrupt", Timeout: timeout}
}

// DiscoverPrompt deduces the shell prompt by repeatedly sending the
// interrupt character until the same single-line response is observed
// several times in a row with nothing else in between. On success the
// discovered prompt is recorded for later completion detection.
func (c *Console) DiscoverPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	var accumulated strings.Builder
	candidate := ""
	count := 0

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return accumulated.String(), err
		}
		if err := c.Write(InterruptChar); err != nil {
			return accumulated.String(), err
		}

		resp, err := c.ReadAll(ctx)
		if err != nil {
			return accumulated.String(), err
		}
		accumulated.WriteString(resp)

		resp = strings.ReplaceAll(resp, interruptIndicator, "")
		lines := nonEmptyLines(resp)

		// The same lone line must repeat with no other output emitted
		// in between.
		if len(lines) != 1 {
			candidate = ""
			count = 0
			continue
		}

		if lines[0] == candidate {
			count++
		} else {
			candidate = lines[0]
			count = 1
		}

		if count >= promptRepeatCount {
			c.logger.Info("Identified console prompt", zap.String("prompt", candidate))
			c.prompt = candidate
			return accumulated.String(), nil
		}
	}

	return accumulated.String(), &TimeoutError{Op: "discover-prompt", Timeout: timeout}
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// StripEchoedInput removes the echoed command from the start of console
// output. Shells echo input back; the echo is not response data.
func StripEchoedInput(input, output string) string {
	input = strings.TrimRight(input, " \t\r\n")
	if strings.HasPrefix(output, input) {
		return strings.TrimLeft(output[len(input):], " \t\r\n")
	}
	return output
}

// Close shuts down the monitor (if any) and the transport. The Console
// must not be used afterwards.
func (c *Console) Close() error {
	if c.mon != nil {
		_ = c.mon.close()
		c.mon = nil
	}
	if err := c.transport.Close(); err != nil {
		return &TransportError{Op: "close", Device: c.device, Err: err}
	}
	return nil
}
