package kiosk

// LockState is the lifecycle state of the lock session.
type LockState int

const (
	// StateStarting is the state before the startup gate has run.
	StateStarting LockState = iota
	// StateLocked means the surface is visible, topmost and audited.
	StateLocked
	// StateIdle means every surface was closed on macOS and the session waits
	// for Activate. No audit runs while idle.
	StateIdle
	// StateCompromised is entered on a policy violation and always leads to
	// StateTerminating.
	StateCompromised
	StateTerminating
)

func (s LockState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateLocked:
		return "locked"
	case StateIdle:
		return "idle"
	case StateCompromised:
		return "compromised"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}
