// Package focuslock keeps the locked surface visible, raised and focused by
// reacting to its window events.
package focuslock

import (
	"log/slog"

	"github.com/kiosklock/kiosklock/pkg/surface"
)

// Policy toggles the optional reactions.
type Policy struct {
	RefocusOnBlur     bool
	RestoreOnMinimize bool
}

// DefaultPolicy refocuses on blur and leaves minimize alone.
func DefaultPolicy() Policy {
	return Policy{RefocusOnBlur: true}
}

// Enforcer reacts to the events of one surface.
type Enforcer struct {
	policy Policy
	logger *slog.Logger
}

func New(policy Policy, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{policy: policy, logger: logger}
}

// Attach subscribes the enforcer to s.
func (e *Enforcer) Attach(s surface.Surface) {
	s.Subscribe(surface.EventResize, func() { e.OnResize(s) })
	s.Subscribe(surface.EventBlur, func() { e.OnBlur(s) })
	s.Subscribe(surface.EventShow, func() { e.OnShow(s) })
	s.Subscribe(surface.EventMinimize, func() { e.OnMinimize(s) })
}

// OnResize shows and raises s unconditionally.
func (e *Enforcer) OnResize(s surface.Surface) {
	e.showAndRaise(s, surface.EventResize)
}

func (e *Enforcer) OnBlur(s surface.Surface) {
	if !e.policy.RefocusOnBlur {
		return
	}
	e.showAndRaise(s, surface.EventBlur)
}

func (e *Enforcer) OnShow(s surface.Surface) {
	if err := s.Focus(); err != nil {
		e.logger.Warn("Focus surface failed", "error", err)
	}
}

func (e *Enforcer) OnMinimize(s surface.Surface) {
	if !e.policy.RestoreOnMinimize {
		return
	}
	if err := s.Restore(); err != nil {
		e.logger.Warn("Restore surface failed", "error", err)
	}
	if err := s.MoveTop(); err != nil {
		e.logger.Warn("Raise surface failed", "event", surface.EventMinimize.String(), "error", err)
	}
}

func (e *Enforcer) showAndRaise(s surface.Surface, ev surface.EventKind) {
	if err := s.Show(); err != nil {
		e.logger.Warn("Show surface failed", "event", ev.String(), "error", err)
	}
	if err := s.MoveTop(); err != nil {
		e.logger.Warn("Raise surface failed", "event", ev.String(), "error", err)
	}
}
