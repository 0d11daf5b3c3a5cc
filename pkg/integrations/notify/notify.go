// Package notify delivers desktop notifications over the D-Bus session bus.
package notify

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/pkg/alert"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	method     = busName + ".Notify"
)

// Normal notifications use the server default expiry.
const (
	expireDefault int32 = -1
	expireNever   int32 = 0
)

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Notifier sends org.freedesktop.Notifications.Notify calls. When a call
// cannot be sent the notification goes to the fallback instead.
type Notifier struct {
	AppName  string
	obj      caller
	conn     *dbus.Conn
	fallback alert.Notifier
	logger   *slog.Logger
}

// Connect opens the session bus and checks that a notification daemon owns
// its well-known name.
func Connect(appName string, fallback alert.Notifier, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to session bus")
	}

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busName).Store(&owned)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to query notification service")
	}
	if !owned {
		conn.Close()
		return nil, errors.Errorf("no notification service owns %s", busName)
	}

	n := newNotifier(appName, conn.Object(busName, objectPath), fallback, logger)
	n.conn = conn
	return n, nil
}

func newNotifier(appName string, obj caller, fallback alert.Notifier, logger *slog.Logger) *Notifier {
	if fallback == nil {
		fallback = alert.LogNotifier{Logger: logger}
	}
	return &Notifier{AppName: appName, obj: obj, fallback: fallback, logger: logger}
}

// Notify implements alert.Notifier. Critical notifications stay until
// dismissed.
func (n *Notifier) Notify(title, body string, urgency alert.Urgency) {
	expire := expireDefault
	if urgency == alert.UrgencyCritical {
		expire = expireNever
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(urgency)),
	}

	call := n.obj.Call(method, dbus.FlagNoReplyExpected,
		n.AppName, uint32(0), "", title, body, []string{}, hints, expire)
	if call != nil && call.Err != nil {
		n.logger.Warn("Notification not delivered", "error", call.Err)
		n.fallback.Notify(title, body, urgency)
	}
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
