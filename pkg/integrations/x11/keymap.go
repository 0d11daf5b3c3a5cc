package x11

import (
	"strings"

	"github.com/jezek/xgb/xproto"

	"github.com/kiosklock/kiosklock/internal/input"
	"github.com/kiosklock/kiosklock/pkg/surface"
)

// Keysyms without a printable Latin-1 form.
var keysymNames = map[xproto.Keysym]string{
	0xff08: "BackSpace",
	0xff09: "Tab",
	0xff0d: "Return",
	0xff1b: "Escape",
	0xff50: "Home",
	0xff51: "Left",
	0xff52: "Up",
	0xff53: "Right",
	0xff54: "Down",
	0xff55: "Prior",
	0xff56: "Next",
	0xff57: "End",
	0xff61: "Print",
	0xff63: "Insert",
	0xffff: "Delete",
	0xffbe: "F1",
	0xffbf: "F2",
	0xffc0: "F3",
	0xffc1: "F4",
	0xffc2: "F5",
	0xffc3: "F6",
	0xffc4: "F7",
	0xffc5: "F8",
	0xffc6: "F9",
	0xffc7: "F10",
	0xffc8: "F11",
	0xffc9: "F12",
	0xffeb: "Super_L",
	0xffec: "Super_R",
}

// keysymName returns the key identifier used by surface.InputEvent.
func keysymName(ks xproto.Keysym) string {
	if ks >= 0x20 && ks <= 0x7e {
		return string(rune(ks))
	}
	return keysymNames[ks]
}

// keysymFor is the inverse of keysymName. Letters map to their lower-case
// keysym, which is the one the keyboard map lists first.
func keysymFor(name string) (xproto.Keysym, bool) {
	if len(name) == 1 && name[0] >= 0x20 && name[0] <= 0x7e {
		return xproto.Keysym(strings.ToLower(name)[0]), true
	}
	for ks, n := range keysymNames {
		if strings.EqualFold(n, name) {
			return ks, true
		}
	}
	return 0, false
}

func modifiersFromState(state uint16) surface.Modifiers {
	var m surface.Modifiers
	if state&xproto.ModMaskShift != 0 {
		m |= surface.ModShift
	}
	if state&xproto.ModMaskControl != 0 {
		m |= surface.ModControl
	}
	if state&xproto.ModMask1 != 0 {
		m |= surface.ModAlt
	}
	if state&xproto.ModMask4 != 0 {
		m |= surface.ModMeta
	}
	return m
}

func maskFor(m surface.Modifiers) uint16 {
	var mask uint16
	if m.Has(surface.ModShift) {
		mask |= xproto.ModMaskShift
	}
	if m.Has(surface.ModControl) {
		mask |= xproto.ModMaskControl
	}
	if m.Has(surface.ModAlt) {
		mask |= xproto.ModMask1
	}
	if m.Has(surface.ModMeta) {
		mask |= xproto.ModMask4
	}
	return mask
}

// lockMasks are the CapsLock and NumLock combinations a passive grab must
// also cover to fire regardless of lock state.
var lockMasks = []uint16{0, xproto.ModMaskLock, xproto.ModMask2, xproto.ModMaskLock | xproto.ModMask2}

// keymap is a snapshot of the server keyboard mapping.
type keymap struct {
	min     xproto.Keycode
	per     int
	keysyms []xproto.Keysym
}

func (k *keymap) keysym(code xproto.Keycode, shift bool) xproto.Keysym {
	if k == nil || k.per == 0 || code < k.min {
		return 0
	}
	base := int(code-k.min) * k.per
	if base >= len(k.keysyms) {
		return 0
	}
	if shift && k.per > 1 && base+1 < len(k.keysyms) && k.keysyms[base+1] != 0 {
		return k.keysyms[base+1]
	}
	return k.keysyms[base]
}

func (k *keymap) keycode(ks xproto.Keysym) (xproto.Keycode, bool) {
	if k == nil || k.per == 0 {
		return 0, false
	}
	for i, sym := range k.keysyms {
		if sym == ks {
			return k.min + xproto.Keycode(i/k.per), true
		}
	}
	return 0, false
}

// translate turns a key press into an input event.
func (k *keymap) translate(code xproto.Keycode, state uint16) surface.InputEvent {
	mods := modifiersFromState(state)
	return surface.InputEvent{
		Modifiers: mods,
		Key:       keysymName(k.keysym(code, mods.Has(surface.ModShift))),
	}
}

// KeyGrab is a system-wide key combination routed to the surface. An empty
// Key grabs every key held with Modifiers.
type KeyGrab struct {
	Modifiers surface.Modifiers
	Key       string
}

// GrabsForPolicy returns the grabs that route every combo the policy acts on
// to the surface: each suppressed modifier with any key, and the escape combo.
func GrabsForPolicy(p input.Policy) []KeyGrab {
	var grabs []KeyGrab
	if p.SuppressModifiers {
		for _, mod := range []surface.Modifiers{surface.ModShift, surface.ModControl, surface.ModAlt, surface.ModMeta} {
			if p.Modifiers.Has(mod) {
				grabs = append(grabs, KeyGrab{Modifiers: mod})
			}
		}
	}
	if p.EscapeCombo.Key != "" {
		grabs = append(grabs, KeyGrab{Modifiers: p.EscapeCombo.Modifiers, Key: p.EscapeCombo.Key})
	}
	return grabs
}
