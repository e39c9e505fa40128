// Package notify delivers profile change events to downstream consumers.
//
// A change event is published only after a profile switched server and
// both of its documents were written. Available transports:
//
//   - DBusNotifier emits a signal on the system or session bus
//   - ExecNotifier runs a command with the event JSON as its last argument,
//     e.g. redis-cli publish on a Firewalla box
//   - DesktopNotifier pops a desktop notification through notify-send
//   - LogNotifier only logs the event
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/config"
	"github.com/yllada/lynxsync/vpn"
)

// New builds the notifier selected by cfg. The returned close function
// releases any connection the notifier holds.
func New(cfg config.NotifierConfig) (vpn.Notifier, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case "", config.NotifierNone:
		return NewLogNotifier(common.GetLogger()), noop, nil
	case config.NotifierDBus:
		n, err := DialDBus(cfg.Bus, cfg.Path, cfg.Interface)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	case config.NotifierExec:
		n, err := NewExecNotifier(cfg.Command)
		if err != nil {
			return nil, nil, err
		}
		return n, noop, nil
	case config.NotifierDesktop:
		return NewDesktopNotifier(), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown notifier type %q", common.ErrInvalidConfig, cfg.Type)
	}
}

// encode renders the wire form of an event.
func encode(event vpn.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event for %s: %w", event.ProfileID, err)
	}
	return data, nil
}

// LogNotifier logs events instead of delivering them.
type LogNotifier struct {
	log common.Logger
}

// NewLogNotifier creates a notifier writing to l.
func NewLogNotifier(l common.Logger) *LogNotifier {
	return &LogNotifier{log: l}
}

// Publish implements vpn.Notifier.
func (n *LogNotifier) Publish(_ context.Context, event vpn.Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	n.log.Info("Event %s: %s", event.Type, data)
	return nil
}
