// Package cli provides the terminal front end of lynxsync: the run
// report, profile listing, history and wg-quick rendering.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yllada/lynxsync/history"
	"github.com/yllada/lynxsync/vpn"
)

// CLI represents the command-line interface.
type CLI struct {
	out    io.Writer
	store  vpn.ProfileStore
	ledger *history.Ledger
	color  bool
	now    func() time.Time
}

// New creates a new CLI instance. ledger may be nil when history is
// disabled.
func New(out io.Writer, store vpn.ProfileStore, ledger *history.Ledger) *CLI {
	return &CLI{
		out:    out,
		store:  store,
		ledger: ledger,
		color:  IsTerminal(out),
		now:    time.Now,
	}
}

// SetColor forces colored output on or off.
func (c *CLI) SetColor(on bool) {
	c.color = on
}

// PrintReport prints one row per profile followed by a summary line.
func (c *CLI) PrintReport(report *vpn.Report) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tID\tSERVER\tLOAD\tOUTCOME")
	fmt.Fprintln(w, "-------\t--\t------\t----\t-------")

	for _, res := range report.Results {
		server, load := "-", "-"
		if res.Settings != nil {
			server = res.Settings.ServerName
			load = fmt.Sprintf("%d%%", res.Settings.Load.Percent)
		}
		id := res.ProfileID
		if id == "" {
			id = "-"
		}
		outcome := c.outcome(res.Outcome)
		if res.Err != nil {
			outcome += ": " + res.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", res.Label, id, server, load, outcome)
	}
	w.Flush()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.summary(report))
}

func (c *CLI) summary(report *vpn.Report) string {
	counts := report.Counts()
	var parts []string
	for _, o := range []vpn.Outcome{vpn.OutcomeCreated, vpn.OutcomeSwitched, vpn.OutcomeRefreshed, vpn.OutcomeKeptSame, vpn.OutcomeFailed} {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	line := fmt.Sprintf("Run %s: %s in %s", shortID(report.RunID), strings.Join(parts, ", "), formatDuration(report.Duration()))
	if c.color {
		style := summaryStyle
		if report.Failed() > 0 {
			style = failedStyle
		}
		return style.Render(line)
	}
	return line
}

func (c *CLI) outcome(o vpn.Outcome) string {
	if !c.color {
		return o.String()
	}
	return outcomeStyle(o).Render(o.String())
}

// ListProfiles lists the persisted profiles.
func (c *CLI) ListProfiles(ctx context.Context) error {
	ids, err := c.store.List(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Fprintln(c.out, "No profiles persisted yet.")
		fmt.Fprintln(c.out, "Run lynxsync without options to create them.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSERVER\tLOAD\tUPDATED")
	fmt.Fprintln(w, "--\t----\t------\t----\t-------")

	for _, id := range ids {
		s, err := c.store.ReadSettings(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", id, "(unreadable)")
			continue
		}
		updated := s.CreatedDate
		if s.UpdatedDate != nil {
			updated = *s.UpdatedDate
		}
		age := "-"
		if !updated.IsZero() {
			age = formatDuration(c.now().Sub(updated.Time)) + " ago"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", id, s.DisplayName, s.ServerName, s.Load.Percent, age)
	}

	w.Flush()
	return nil
}

// History prints the last n ledger entries, optionally only those of
// one profile.
func (c *CLI) History(ctx context.Context, n int, profile string) error {
	if c.ledger == nil {
		return fmt.Errorf("history is disabled (historyDB: \"-\")")
	}

	var (
		entries []history.Entry
		err     error
	)
	if profile == "" {
		entries, err = c.ledger.Recent(ctx, n)
	} else {
		// profiles that no longer resolve in the store are queried verbatim
		id := profile
		if found, ferr := c.findProfile(ctx, profile); ferr == nil {
			id = found
		}
		entries, err = c.ledger.ForProfile(ctx, id, n)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tPROFILE\tSERVER\tLOAD\tOUTCOME")
	fmt.Fprintln(w, "----\t---\t-------\t------\t----\t-------")
	for _, e := range entries {
		server, load := e.Server, fmt.Sprintf("%d%%", e.Load)
		if server == "" {
			server, load = "-", "-"
		}
		outcome := e.Outcome
		if e.ErrorKind != "" {
			outcome += " (" + e.ErrorKind + ")"
		}
		label := e.ProfileID
		if label == "" {
			label = e.Label
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format("2006-01-02 15:04:05"), shortID(e.RunID), label, server, load, outcome)
	}
	w.Flush()
	return nil
}

// Render prints the wg-quick form of a persisted profile.
func (c *CLI) Render(ctx context.Context, nameOrID string, redact bool) error {
	id, err := c.findProfile(ctx, nameOrID)
	if err != nil {
		return err
	}
	peer, err := c.store.ReadPeerConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("read peer config %s: %w", id, err)
	}
	text, err := vpn.RenderWGQuick(peer, redact)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "# %s\n%s", id, text)
	return nil
}

// findProfile finds a profile by id, id prefix or display name
// (case-insensitive).
func (c *CLI) findProfile(ctx context.Context, nameOrID string) (string, error) {
	ids, err := c.store.List(ctx)
	if err != nil {
		return "", err
	}
	want := strings.ToLower(strings.TrimSpace(nameOrID))
	if want == "" {
		return "", fmt.Errorf("profile not found: %q", nameOrID)
	}

	for _, id := range ids {
		if strings.ToLower(id) == want {
			return id, nil
		}
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(strings.ToLower(id), want) {
			matches = append(matches, id)
			continue
		}
		if s, err := c.store.ReadSettings(ctx, id); err == nil && strings.HasPrefix(strings.ToLower(s.DisplayName), want) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("profile not found: %s", nameOrID)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous: %s", nameOrID, strings.Join(matches, ", "))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// PrintHelp prints CLI usage help.
func PrintHelp() {
	fmt.Println(`lynxsync - NordLynx profile reconciler

Usage:
  lynxsync [OPTIONS]

Options:
  --config PATH     Configuration file (default ~/.config/lynxsync/config.yaml)
  --verbose         Enable verbose logging
  --once            Run a single reconciliation and exit (default)
  --interval DUR    Reconcile every DUR until interrupted (e.g. 30m)
  --list            List persisted profiles
  --history N       Show the last N recorded outcomes
  --profile ID      Limit --history to one profile
  --render ID       Print a profile as a wg-quick config
  --show-key        Do not redact the private key in --render output
  --store-key       Read a private key from stdin and save it in the keyring
  --plain           Disable the interactive progress view and colors
  --version         Show version and exit
  --help            Show this help message

Examples:
  lynxsync
  lynxsync --interval 30m
  lynxsync --list
  lynxsync --render lynx-3-France
  lynxsync --history 20 --profile france
  wg genkey | lynxsync --store-key

Notes:
  - Change events are only published when a profile switches server
  - Exit status is 1 when any profile failed to reconcile`)
}
