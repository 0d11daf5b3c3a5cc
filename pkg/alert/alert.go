// Package alert defines the notification and audible-alert capabilities used
// when the kiosk environment is found compromised.
package alert

import (
	"context"
	"log/slog"
)

// Urgency mirrors the freedesktop notification urgency levels.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Notifier presents a notification. Calls are fire-and-forget.
type Notifier interface {
	Notify(title, body string, urgency Urgency)
}

// Beeper emits an audible alert. Calls are fire-and-forget.
type Beeper interface {
	Beep()
}

// Alerter combines both capabilities.
type Alerter interface {
	Notifier
	Beeper
}

// Composite joins an independent Notifier and Beeper.
type Composite struct {
	Notifier
	Beeper
}

// LogNotifier writes notifications to a logger. It is the fallback when no
// notification daemon is reachable.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// Notify logs the notification at warn level, error level when critical.
func (n LogNotifier) Notify(title, body string, urgency Urgency) {
	level := slog.LevelWarn
	if urgency == UrgencyCritical {
		level = slog.LevelError
	}
	n.logger().Log(context.Background(), level, "notification", "title", title, "body", body, "urgency", urgency.String())
}

// Beep logs the bell.
func (n LogNotifier) Beep() {
	n.logger().Warn("Beep")
}
