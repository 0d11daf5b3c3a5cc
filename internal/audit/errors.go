package audit

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/pkg/platform"
)

var (
	// ErrNoDisplays is reported when the enumerator returns zero displays.
	ErrNoDisplays = errors.New("no displays attached")

	// ErrNoSignatureSet is returned when no signatures are configured for a family.
	ErrNoSignatureSet = errors.New("no signature set for os family")
)

// ExecutionError means the process-listing primitive could not be invoked for
// one signature. The signature is treated as not matching.
type ExecutionError struct {
	Signature string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("list processes matching %q: %v", e.Signature, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// EnumerationError means the display count was unavailable. It abandons the
// display check for the current tick only.
type EnumerationError struct {
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate displays: %v", e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// PolicyViolation is an unrecoverable detection of a remote-access tool.
type PolicyViolation struct {
	Family    platform.Family
	Signature string
	Processes []Process
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("remote access tool %q running on %s (%d processes)", e.Signature, e.Family, len(e.Processes))
}

// TransientCondition is a recoverable detection of more than one display.
type TransientCondition struct {
	Displays int
}

func (e *TransientCondition) Error() string {
	return fmt.Sprintf("%d displays attached", e.Displays)
}
