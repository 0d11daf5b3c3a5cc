package surface

import (
	"image"
	"strings"
)

// EventKind enumerates the window lifecycle events a surface reports.
type EventKind int

const (
	EventResize EventKind = iota
	EventMinimize
	EventShow
	EventBlur
	// EventClosed fires when the surface was closed by someone other than its owner.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventResize:
		return "resize"
	case EventMinimize:
		return "minimize"
	case EventShow:
		return "show"
	case EventBlur:
		return "blur"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Modifiers is a bit set of held modifier keys.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta
)

// Has reports whether every modifier in m is held.
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod == mod
}

// Any reports whether at least one modifier of set is held.
func (m Modifiers) Any(set Modifiers) bool {
	return m&set != 0
}

func (m Modifiers) String() string {
	var parts []string
	if m.Has(ModControl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if m.Has(ModMeta) {
		parts = append(parts, "meta")
	}
	if m.Has(ModShift) {
		parts = append(parts, "shift")
	}
	return strings.Join(parts, "+")
}

// InputEvent is a single keyboard input as seen before default handling.
type InputEvent struct {
	Modifiers Modifiers
	// Key is the key identifier: a single character for printable keys,
	// otherwise a name such as "Tab", "Escape" or "F4".
	Key string
}

// Options are the creation parameters of a surface.
type Options struct {
	Title       string
	Width       int // zero means screen width
	Height      int // zero means screen height
	FullScreen  bool
	AlwaysOnTop bool
	SkipTaskbar bool
	// AllWorkspaces keeps the surface visible on every virtual desktop.
	AllWorkspaces bool
}

// LoadOptions configure how a resource is loaded into the surface.
type LoadOptions struct {
	UserAgent string
}

// InputFilter inspects an input event before default handling.
// Returning true consumes the event.
type InputFilter func(InputEvent) bool

// Surface is a window the user is confined to. Implementations deliver
// subscribed callbacks on the owning event loop.
type Surface interface {
	// Show maps the surface if it is hidden.
	Show() error

	// Focus moves input focus onto the surface.
	Focus() error

	// MoveTop raises the surface above every other window.
	MoveTop() error

	// Restore de-iconifies the surface.
	Restore() error

	SetFullScreen(on bool) error
	SetAlwaysOnTop(on bool) error

	// Subscribe registers fn for events of the given kind.
	Subscribe(kind EventKind, fn func())

	// SetInputFilter installs the filter consulted for every key press.
	SetInputFilter(filter InputFilter)

	// LoadResource displays a local path or URL inside the surface.
	LoadResource(target string, opts LoadOptions) error

	// Snapshot captures the current surface contents.
	Snapshot() (image.Image, error)

	// Destroy closes the surface without emitting EventClosed.
	Destroy() error
}

// Factory creates surfaces.
type Factory interface {
	Create(opts Options) (Surface, error)
}
