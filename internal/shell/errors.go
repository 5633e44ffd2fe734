package shell

import "fmt"

// OperationFailedError indicates the target accepted a command but its
// response matched a known failure pattern.
type OperationFailedError struct {
	Command  string
	Response string
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("command %q failed on target: %s", e.Command, firstLine(e.Response))
}

// PermissionError indicates an operation was refused because the
// corresponding opt-in flag was not set when the dispatcher was created.
// The target is never touched when this error is returned.
type PermissionError struct {
	Operation string
	Flag      string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s is not permitted; enable it with %s", e.Operation, e.Flag)
}

// ParseError indicates a response from the target could not be understood.
type ParseError struct {
	Command  string
	Response string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse response to %q (%s): %s",
		e.Command, e.Reason, firstLine(e.Response))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
