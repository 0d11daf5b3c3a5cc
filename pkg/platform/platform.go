package platform

import (
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Family identifies the operating system family the kiosk runs on.
// Signature sets and process listing formats are keyed by it.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyWindows
	FamilyMac
	FamilyLinux
)

// Families lists every supported family in a stable order.
var Families = []Family{FamilyWindows, FamilyMac, FamilyLinux}

func (f Family) String() string {
	switch f {
	case FamilyWindows:
		return "windows"
	case FamilyMac:
		return "darwin"
	case FamilyLinux:
		return "linux"
	default:
		return "unknown"
	}
}

// ParseFamily accepts the GOOS spelling plus a few common aliases.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows", "win32", "win":
		return FamilyWindows, nil
	case "darwin", "mac", "macos", "osx":
		return FamilyMac, nil
	case "linux":
		return FamilyLinux, nil
	default:
		return FamilyUnknown, errors.Errorf("unknown os family %q (valid: windows, darwin, linux)", s)
	}
}

// FromGOOS maps a runtime.GOOS value to a Family. BSDs are treated as Linux
// since they share the pgrep listing format.
func FromGOOS(goos string) Family {
	switch goos {
	case "windows":
		return FamilyWindows
	case "darwin", "ios":
		return FamilyMac
	case "linux", "android", "freebsd", "openbsd", "netbsd", "dragonfly":
		return FamilyLinux
	default:
		return FamilyUnknown
	}
}

// Current returns the family of the running binary.
func Current() Family {
	return FromGOOS(runtime.GOOS)
}

// Resolve returns the configured family, or the running one when override is empty.
func Resolve(override string) (Family, error) {
	if override == "" {
		f := Current()
		if f == FamilyUnknown {
			return f, errors.Errorf("unsupported platform %s", runtime.GOOS)
		}
		return f, nil
	}
	return ParseFamily(override)
}

// DetectDisplayServer reports "x11", "wayland" or "unknown" from the session
// environment. XWayland sessions report x11 when DISPLAY is set.
func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if x11Display != "" && sessionType != "wayland" {
		return "x11"
	}

	if sessionType == "wayland" || waylandDisplay != "" {
		if x11Display != "" {
			return "xwayland"
		}
		return "wayland"
	}

	if sessionType == "x11" {
		return "x11"
	}

	return "unknown"
}
