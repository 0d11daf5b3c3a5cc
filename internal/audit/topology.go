package audit

// DisplayEnumerator counts the displays currently attached.
type DisplayEnumerator interface {
	Count() (int, error)
}

// TopologyChecker enforces the single-display policy.
type TopologyChecker struct {
	displays DisplayEnumerator
}

func NewTopologyChecker(displays DisplayEnumerator) *TopologyChecker {
	return &TopologyChecker{displays: displays}
}

// Displays returns the attached display count. Zero displays is reported as
// an *EnumerationError wrapping ErrNoDisplays: a kiosk that cannot see its own
// display cannot vouch for the topology.
func (c *TopologyChecker) Displays() (int, error) {
	n, err := c.displays.Count()
	if err != nil {
		return 0, &EnumerationError{Err: err}
	}
	if n <= 0 {
		return 0, &EnumerationError{Err: ErrNoDisplays}
	}
	return n, nil
}

// HasMultipleDisplays reports whether more than one display is attached.
func (c *TopologyChecker) HasMultipleDisplays() (bool, error) {
	n, err := c.Displays()
	if err != nil {
		return false, err
	}
	return n > 1, nil
}
