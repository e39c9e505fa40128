package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

type beginMsg struct {
	label string
	index int
	total int
}

type resultMsg struct {
	result vpn.Result
}

type finishedMsg struct {
	report *vpn.Report
}

// progressModel renders a spinner for the profile in flight and one
// line per finished profile.
type progressModel struct {
	spinner spinner.Model
	cancel  context.CancelFunc

	label string
	index int
	total int

	lines    []string
	finished bool
}

func newProgressModel(cancel context.CancelFunc) progressModel {
	return progressModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		cancel:  cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// the run stops between profiles and reports back
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case beginMsg:
		m.label, m.index, m.total = msg.label, msg.index, msg.total
		return m, nil

	case resultMsg:
		m.lines = append(m.lines, resultLine(msg.result))
		m.label = ""
		return m, nil

	case finishedMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if !m.finished && m.label != "" {
		fmt.Fprintf(&b, "%s Reconciling %s (%d/%d)\n", m.spinner.View(), m.label, m.index+1, m.total)
	}
	return b.String()
}

func resultLine(res vpn.Result) string {
	mark := outcomeStyle(res.Outcome).Render("✓")
	if res.Outcome == vpn.OutcomeFailed {
		mark = failedStyle.Render("✗")
	}
	detail := ""
	switch {
	case res.Err != nil:
		detail = res.Err.Error()
	case res.Settings != nil:
		detail = fmt.Sprintf("%s (%d%%)", res.Settings.ServerName, res.Settings.Load.Percent)
	}
	return fmt.Sprintf("%s %-16s %s %s", mark, res.Label, outcomeStyle(res.Outcome).Render(res.Outcome.String()), detail)
}

// teaProgress forwards manager progress into a running program.
type teaProgress struct {
	program *tea.Program
}

func (p teaProgress) Begin(label string, index, total int) {
	p.program.Send(beginMsg{label: label, index: index, total: total})
}

func (p teaProgress) Done(res vpn.Result) {
	p.program.Send(resultMsg{result: res})
}

// Run executes one manager run. With interactive set, progress is shown
// with a spinner while profiles reconcile; either way the report table
// is printed afterwards.
func (c *CLI) Run(ctx context.Context, mgr *vpn.Manager, interactive bool) *vpn.Report {
	var report *vpn.Report
	if interactive {
		report = runInteractive(ctx, mgr, c.out)
	} else {
		report = mgr.Run(ctx)
	}
	c.PrintReport(report)
	return report
}

func runInteractive(ctx context.Context, mgr *vpn.Manager, out io.Writer) *vpn.Report {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newProgressModel(cancel),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	)

	mgr.SetProgress(teaProgress{program: program})
	defer mgr.SetProgress(nil)

	reports := make(chan *vpn.Report, 1)
	go func() {
		report := mgr.Run(ctx)
		reports <- report
		program.Send(finishedMsg{report: report})
	}()

	if _, err := program.Run(); err != nil {
		common.LogWarn("Progress view stopped: %v", err)
	}
	return <-reports
}
