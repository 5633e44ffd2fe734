package stratagem

import "fmt"

// UnknownFieldError indicates a record did not match its operation's field
// specification: either it carried a field the specification does not name,
// or a required field was absent.
type UnknownFieldError struct {
	Operation string
	Field     string
	Missing   bool
}

func (e *UnknownFieldError) Error() string {
	if e.Missing {
		return fmt.Sprintf("stratagem for %q: required field %q is missing", e.Operation, e.Field)
	}
	return fmt.Sprintf("stratagem for %q: unknown field %q", e.Operation, e.Field)
}

// InvalidValueError indicates a field value could not be converted to the
// type the operation's specification requires.
type InvalidValueError struct {
	Operation string
	Field     string
	Value     any
	Err       error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("stratagem for %q: invalid value %v for field %q: %v",
		e.Operation, e.Value, e.Field, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// UnknownOperationError indicates a serialized stratagem names an operation
// with no registered field specification.
type UnknownOperationError struct {
	Operation string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("no field specification for stratagem operation %q", e.Operation)
}
