package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

// Default signal coordinates.
const (
	DefaultObjectPath = "/com/lynxsync/Profiles"
	DefaultInterface  = "com.lynxsync.Profiles"
	signalMember      = "SettingsChanged"
)

// emitter is the part of *dbus.Conn the notifier uses.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Close() error
}

// DBusNotifier emits every event as a SettingsChanged signal carrying the
// profile id and the event JSON.
type DBusNotifier struct {
	conn  emitter
	path  dbus.ObjectPath
	iface string
}

// DialDBus connects to the "system" (default) or "session" bus.
func DialDBus(bus, path, iface string) (*DBusNotifier, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case "", "system":
		conn, err = dbus.ConnectSystemBus()
	case "session":
		conn, err = dbus.ConnectSessionBus()
	default:
		return nil, fmt.Errorf("%w: unknown dbus bus %q", common.ErrInvalidConfig, bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s bus: %w", bus, err)
	}
	return newDBusNotifier(conn, path, iface)
}

func newDBusNotifier(conn emitter, path, iface string) (*DBusNotifier, error) {
	if path == "" {
		path = DefaultObjectPath
	}
	if iface == "" {
		iface = DefaultInterface
	}
	op := dbus.ObjectPath(path)
	if !op.IsValid() {
		conn.Close()
		return nil, fmt.Errorf("%w: invalid dbus object path %q", common.ErrInvalidConfig, path)
	}
	return &DBusNotifier{conn: conn, path: op, iface: iface}, nil
}

// Publish implements vpn.Notifier.
func (n *DBusNotifier) Publish(ctx context.Context, event vpn.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := n.conn.Emit(n.path, n.iface+"."+signalMember, event.ProfileID, string(data)); err != nil {
		return fmt.Errorf("emit %s for %s: %w", signalMember, event.ProfileID, err)
	}
	common.LogDebug("Emitted %s.%s for %s", n.iface, signalMember, event.ProfileID)
	return nil
}

// Close releases the bus connection.
func (n *DBusNotifier) Close() error {
	return n.conn.Close()
}
