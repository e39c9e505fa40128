package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/yllada/lynxsync/vpn"
)

var (
	createdStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	switchedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	refreshedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	keptStyle      = lipgloss.NewStyle().Faint(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	summaryStyle   = lipgloss.NewStyle().Bold(true)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)

func outcomeStyle(o vpn.Outcome) lipgloss.Style {
	switch o {
	case vpn.OutcomeCreated:
		return createdStyle
	case vpn.OutcomeSwitched:
		return switchedStyle
	case vpn.OutcomeRefreshed:
		return refreshedStyle
	case vpn.OutcomeKeptSame:
		return keptStyle
	default:
		return failedStyle
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
