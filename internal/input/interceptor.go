// Package input decides what happens to keyboard input while the session is
// locked: pass it through, swallow it, or treat it as the escape action.
package input

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/pkg/surface"
)

// Decision is the outcome of inspecting one input event.
type Decision int

const (
	PassThrough Decision = iota
	Suppress
	Escape
)

func (d Decision) String() string {
	switch d {
	case PassThrough:
		return "pass"
	case Suppress:
		return "suppress"
	case Escape:
		return "escape"
	default:
		return "unknown"
	}
}

// Combo is a modifier set plus one key.
type Combo struct {
	Modifiers surface.Modifiers
	Key       string
}

func (c Combo) String() string {
	if c.Modifiers == 0 {
		return c.Key
	}
	return c.Modifiers.String() + "+" + c.Key
}

// Matches reports whether ev holds at least the combo's modifiers and its
// key, ignoring case.
func (c Combo) Matches(ev surface.InputEvent) bool {
	return ev.Modifiers.Has(c.Modifiers) && strings.EqualFold(ev.Key, c.Key)
}

// ParseModifier maps a modifier name to its bit.
func ParseModifier(name string) (surface.Modifiers, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ctrl", "control", "ctl":
		return surface.ModControl, nil
	case "alt", "option", "opt":
		return surface.ModAlt, nil
	case "meta", "super", "win", "cmd", "command":
		return surface.ModMeta, nil
	case "shift":
		return surface.ModShift, nil
	default:
		return 0, errors.Errorf("unknown modifier %q", name)
	}
}

// ParseModifiers parses a list of modifier names into one set.
func ParseModifiers(names []string) (surface.Modifiers, error) {
	var mods surface.Modifiers
	for _, name := range names {
		m, err := ParseModifier(name)
		if err != nil {
			return 0, err
		}
		mods |= m
	}
	return mods, nil
}

// ParseCombo parses strings such as "ctrl+p" or "Ctrl+Shift+F4". The last
// element is the key.
func ParseCombo(s string) (Combo, error) {
	parts := strings.Split(strings.TrimSpace(s), "+")
	key := strings.TrimSpace(parts[len(parts)-1])
	if key == "" {
		return Combo{}, errors.Errorf("combo %q has no key", s)
	}

	mods, err := ParseModifiers(parts[:len(parts)-1])
	if err != nil {
		return Combo{}, errors.Wrapf(err, "parse combo %q", s)
	}
	return Combo{Modifiers: mods, Key: key}, nil
}

// Policy configures the interceptor.
type Policy struct {
	// SuppressModifiers enables swallowing of events that hold any of Modifiers.
	SuppressModifiers bool
	Modifiers         surface.Modifiers
	EscapeCombo       Combo
}

// DefaultPolicy suppresses alt and meta and escapes on ctrl+p.
func DefaultPolicy() Policy {
	return Policy{
		SuppressModifiers: true,
		Modifiers:         surface.ModAlt | surface.ModMeta,
		EscapeCombo:       Combo{Modifiers: surface.ModControl, Key: "p"},
	}
}

// Decide classifies ev. The escape combo wins over suppression unless the
// event also holds a suppressed modifier the combo does not name.
func (p Policy) Decide(ev surface.InputEvent) Decision {
	suppressed := p.SuppressModifiers && ev.Modifiers.Any(p.Modifiers)
	if p.EscapeCombo.Key != "" && p.EscapeCombo.Matches(ev) {
		extra := ev.Modifiers &^ p.EscapeCombo.Modifiers
		if !p.SuppressModifiers || !extra.Any(p.Modifiers) {
			return Escape
		}
	}
	if suppressed {
		return Suppress
	}
	return PassThrough
}
