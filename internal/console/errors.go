package console

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// TransportError represents a connection-level failure on the byte stream
// to the target. These errors are fatal for the session: the transport is
// assumed to be unusable and no retry is attempted.
type TransportError struct {
	// Op describes the operation that failed (e.g., "dial", "read", "write")
	Op string
	// Device is the transport URI or address involved
	Device string
	// Underlying error
	Err error
}

func (e *TransportError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("console transport %s failed for %s: %v", e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("console transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError represents an expired wait for console output. Unlike
// TransportError, a timeout is not necessarily fatal; the caller decides
// whether to retry, interrupt, or give up.
type TimeoutError struct {
	// Op describes the operation that timed out (e.g., "read-line", "interrupt")
	Op string
	// Timeout is the duration that elapsed without the expected output
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("console %s timed out after %s", e.Op, e.Timeout)
}

// isDeadlineExceeded reports whether err is a read/write deadline expiry
// rather than a real transport failure.
func isDeadlineExceeded(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
