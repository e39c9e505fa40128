package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

// execTimeout bounds a single notification command.
const execTimeout = 10 * time.Second

// runFunc runs a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecNotifier runs a command for every event with the event JSON appended
// as the last argument.
type ExecNotifier struct {
	command []string
	run     runFunc
}

// NewExecNotifier creates a notifier for command, e.g.
// ["redis-cli", "publish", "TO.FireMain"].
func NewExecNotifier(command []string) (*ExecNotifier, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("%w: empty notifier command", common.ErrInvalidConfig)
	}
	return &ExecNotifier{command: append([]string{}, command...), run: runCommand}, nil
}

// Publish implements vpn.Notifier.
func (n *ExecNotifier) Publish(ctx context.Context, event vpn.Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	args := append(append([]string{}, n.command[1:]...), string(data))
	out, err := n.run(ctx, n.command[0], args...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", n.command[0], err, strings.TrimSpace(string(out)))
	}
	common.LogDebug("Notified %s via %s", event.ProfileID, n.command[0])
	return nil
}
