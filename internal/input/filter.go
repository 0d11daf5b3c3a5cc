package input

import (
	"log/slog"

	"github.com/kiosklock/kiosklock/pkg/surface"
)

// Filter adapts a Policy to a surface input filter. onEscape runs once per
// escape event, after the event has been consumed.
func Filter(p Policy, onEscape func(), logger *slog.Logger) surface.InputFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev surface.InputEvent) bool {
		switch p.Decide(ev) {
		case Escape:
			logger.Info("Escape combo pressed", "combo", p.EscapeCombo.String())
			if onEscape != nil {
				onEscape()
			}
			return true
		case Suppress:
			logger.Debug("Suppressed key", "modifiers", ev.Modifiers.String(), "key", ev.Key)
			return true
		default:
			return false
		}
	}
}
