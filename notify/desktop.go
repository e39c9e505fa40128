package notify

import (
	"context"
	"fmt"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

// DesktopNotifier shows a desktop notification using notify-send.
type DesktopNotifier struct {
	icon string
	run  runFunc
}

// NewDesktopNotifier creates a notifier using the default VPN icon.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{icon: "network-vpn", run: runCommand}
}

// Publish implements vpn.Notifier.
func (n *DesktopNotifier) Publish(ctx context.Context, event vpn.Event) error {
	title := "VPN profile switched"
	message := event.ProfileID
	if s := event.Settings; s != nil {
		message = fmt.Sprintf("%s now uses %s (load %d%%)", s.DisplayName, s.ServerName, s.Load.Percent)
	}

	out, err := n.run(ctx, "notify-send",
		"--app-name="+common.AppName,
		"--icon="+n.icon,
		"--urgency=low",
		title,
		message,
	)
	if err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, out)
	}
	return nil
}
