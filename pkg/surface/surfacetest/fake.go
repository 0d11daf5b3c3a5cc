// Package surfacetest provides an in-memory surface for tests.
package surfacetest

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/pkg/surface"
)

// Surface records every call made on it and lets tests emit events.
type Surface struct {
	Opts surface.Options

	Visible     bool
	Minimized   bool
	Top         bool
	Focused     bool
	FullScreen  bool
	AlwaysOnTop bool
	Destroyed   bool

	Loaded    []string
	UserAgent string
	Calls     []string

	Filter   surface.InputFilter
	handlers map[surface.EventKind][]func()
}

func (s *Surface) record(call string) error {
	s.Calls = append(s.Calls, call)
	if s.Destroyed {
		return errors.Errorf("%s on destroyed surface", call)
	}
	return nil
}

func (s *Surface) Show() error {
	if err := s.record("show"); err != nil {
		return err
	}
	s.Visible = true
	return nil
}

func (s *Surface) Focus() error {
	if err := s.record("focus"); err != nil {
		return err
	}
	s.Focused = true
	return nil
}

func (s *Surface) MoveTop() error {
	if err := s.record("movetop"); err != nil {
		return err
	}
	s.Top = true
	return nil
}

func (s *Surface) Restore() error {
	if err := s.record("restore"); err != nil {
		return err
	}
	s.Minimized = false
	s.Visible = true
	return nil
}

func (s *Surface) SetFullScreen(on bool) error {
	if err := s.record("fullscreen"); err != nil {
		return err
	}
	s.FullScreen = on
	return nil
}

func (s *Surface) SetAlwaysOnTop(on bool) error {
	if err := s.record("alwaysontop"); err != nil {
		return err
	}
	s.AlwaysOnTop = on
	return nil
}

func (s *Surface) Subscribe(kind surface.EventKind, fn func()) {
	if s.handlers == nil {
		s.handlers = make(map[surface.EventKind][]func())
	}
	s.handlers[kind] = append(s.handlers[kind], fn)
}

func (s *Surface) SetInputFilter(filter surface.InputFilter) {
	s.Filter = filter
}

func (s *Surface) LoadResource(target string, opts surface.LoadOptions) error {
	if err := s.record("load"); err != nil {
		return err
	}
	s.Loaded = append(s.Loaded, target)
	s.UserAgent = opts.UserAgent
	return nil
}

func (s *Surface) Snapshot() (image.Image, error) {
	if err := s.record("snapshot"); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	return img, nil
}

func (s *Surface) Destroy() error {
	if s.Destroyed {
		return errors.New("surface already destroyed")
	}
	s.Calls = append(s.Calls, "destroy")
	s.Destroyed = true
	s.Visible = false
	s.Top = false
	return nil
}

// Emit delivers an event to the subscribers of kind. Minimize and blur update
// the recorded state first, the way a window manager would.
func (s *Surface) Emit(kind surface.EventKind) {
	switch kind {
	case surface.EventMinimize:
		s.Minimized = true
		s.Visible = false
		s.Top = false
	case surface.EventBlur:
		s.Focused = false
		s.Top = false
	case surface.EventClosed:
		s.Destroyed = true
		s.Visible = false
	}
	for _, fn := range s.handlers[kind] {
		fn()
	}
}

// Press runs ev through the installed filter and reports whether it was consumed.
func (s *Surface) Press(ev surface.InputEvent) bool {
	if s.Filter == nil {
		return false
	}
	return s.Filter(ev)
}

// ResetCalls clears the call log.
func (s *Surface) ResetCalls() {
	s.Calls = nil
}

// Factory hands out fake surfaces and remembers them.
type Factory struct {
	Created []*Surface
	Err     error
}

func (f *Factory) Create(opts surface.Options) (surface.Surface, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	s := &Surface{Opts: opts, FullScreen: opts.FullScreen, AlwaysOnTop: opts.AlwaysOnTop}
	f.Created = append(f.Created, s)
	return s, nil
}

// Last returns the most recently created surface, or nil.
func (f *Factory) Last() *Surface {
	if len(f.Created) == 0 {
		return nil
	}
	return f.Created[len(f.Created)-1]
}
