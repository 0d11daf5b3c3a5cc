// Package utils holds small formatting helpers shared by the CLI output.
package utils

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// FormatRounded renders d in its largest whole unit: seconds, minutes, hours
// or days. The sign is dropped.
func FormatRounded(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	case d < day:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	default:
		return fmt.Sprintf("%dd", int64(d/day))
	}
}
