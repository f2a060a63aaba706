// Package fault names the hardware and plumbing failure classes of the rover.
// Subsystem faults disable one subsystem (drive, winch, ...) while the rest
// of the process keeps running.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault.
type Kind int

const (
	// Init is a pin/PWM acquisition failure at startup.
	Init Kind = iota + 1
	// Write is a failed write to an already-initialized actuator.
	Write
	// NotFound is an operation on a gamepad that is no longer connected.
	NotFound
	// Closed means the counterpart of a command queue has terminated.
	Closed
)

func (k Kind) String() string {
	switch k {
	case Init:
		return "hardware init"
	case Write:
		return "hardware write"
	case NotFound:
		return "device not found"
	case Closed:
		return "channel closed"
	default:
		return "unknown"
	}
}

// Error is a fault attributed to a subsystem.
type Error struct {
	Subsystem string
	Kind      Kind
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Subsystem, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Subsystem, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a fault of the given kind. A nil err stays nil.
func New(subsystem string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Subsystem: subsystem, Kind: kind, Err: err}
}

// Is reports whether err carries a fault of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// SubsystemOf returns the subsystem name of a fault, or "" for other errors.
func SubsystemOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Subsystem
	}
	return ""
}
