package domain

import (
	"errors"
	"fmt"
)

// ErrAlreadySupervised is returned when supervision setup is attempted on a
// device that is already under management.
var ErrAlreadySupervised = errors.New("device is already supervised")

// CommandError reports a nonzero exit status from the device control tool.
// The captured combined output often explains the failure (e.g. "No such
// device") and is surfaced verbatim to the user.
type CommandError struct {
	Status int    // Process exit status (nonzero)
	Output string // Combined stdout+stderr text
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed with status %d: %s", e.Status, e.Output)
}

// SessionActiveError rejects an unshift attempted during an active focus
// session. It is a policy rejection, not a transient fault; callers must not
// retry automatically.
type SessionActiveError struct {
	Remaining string // Human-readable remaining time (e.g. "9:57")
}

func (e *SessionActiveError) Error() string {
	return fmt.Sprintf("cannot unshift during active focus session: %s remaining", e.Remaining)
}
