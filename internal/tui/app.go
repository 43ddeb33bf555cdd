// Package tui provides the interactive optimize screen for ordo.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/ordo/internal/solver"
)

// Session is the optimize run the screen drives. *solver.Session
// implements it.
type Session interface {
	Load(ctx context.Context) error
	Start() error
	Stop() error
	Step() (bool, error)
	Commit(ctx context.Context) (solver.CommitReport, error)
	Cancel() error
	Snapshot() solver.Snapshot
	Observe(fn solver.Observer)
}

// App is the optimize screen model.
type App struct {
	session Session
	names   map[string]string
	updates chan solver.Snapshot

	snap    solver.Snapshot
	report  *solver.CommitReport
	message string
	isError bool

	spinner spinner.Model
	help    help.Model
	keys    keyMap
	width   int
	height  int
}

// New creates the optimize screen. names maps goal ids to display names.
func New(session Session, names map[string]string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = valueStyle

	a := &App{
		session: session,
		names:   names,
		updates: make(chan solver.Snapshot, 1),
		spinner: sp,
		help:    help.New(),
		keys:    defaultKeyMap(),
		width:   80,
	}
	session.Observe(a.publish)
	a.snap = session.Snapshot()
	return a
}

// publish keeps only the newest snapshot so a slow renderer never blocks
// the optimizer.
func (a *App) publish(snap solver.Snapshot) {
	for {
		select {
		case a.updates <- snap:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		a.load(),
		a.waitForSnapshot(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil

	case loadedMsg:
		a.snap = a.session.Snapshot()
		if msg.err != nil {
			a.setError(msg.err)
		} else {
			a.setMessage(fmt.Sprintf("Loaded %d goals", len(a.snap.Goals)))
		}
		return a, nil

	case snapshotMsg:
		// ticks may land after a pause; only move forward
		if msg.snap.Iteration >= a.snap.Iteration {
			a.snap = msg.snap
			a.snap.State = a.session.Snapshot().State
		}
		return a, a.waitForSnapshot()

	case committedMsg:
		a.snap = a.session.Snapshot()
		if msg.err != nil {
			a.setError(msg.err)
			return a, nil
		}
		a.report = &msg.report
		if len(msg.report.Failed) > 0 {
			a.setError(fmt.Errorf("%d of %d goals failed to save",
				len(msg.report.Failed), len(msg.report.Failed)+len(msg.report.Committed)))
		} else {
			a.setMessage(fmt.Sprintf("Saved %d goals", len(msg.report.Committed)))
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		if !a.session.Snapshot().State.Terminal() {
			_ = a.session.Cancel()
		}
		return a, tea.Quit

	case key.Matches(msg, a.keys.Start):
		a.apply(a.session.Start(), "Optimizing")

	case key.Matches(msg, a.keys.Stop):
		a.apply(a.session.Stop(), "Paused")

	case key.Matches(msg, a.keys.Step):
		accepted, err := a.session.Step()
		verdict := "rejected"
		if accepted {
			verdict = "accepted"
		}
		a.apply(err, "Step "+verdict)

	case key.Matches(msg, a.keys.Cancel):
		a.apply(a.session.Cancel(), "Cancelled; nothing was saved")

	case key.Matches(msg, a.keys.Commit):
		if s := a.session.Snapshot().State; s != solver.StateIdle && s != solver.StatePaused {
			a.setError(fmt.Errorf("cannot commit while %s", s))
			return a, nil
		}
		a.setMessage("Saving schedule...")
		return a, a.commit()

	case key.Matches(msg, a.keys.Retry):
		if a.session.Snapshot().State == solver.StateLoadFailed {
			a.setMessage("Retrying load...")
			return a, a.load()
		}
	}
	return a, nil
}

func (a *App) apply(err error, ok string) {
	a.snap = a.session.Snapshot()
	if err != nil {
		a.setError(err)
		return
	}
	a.setMessage(ok)
}

func (a *App) setMessage(m string) {
	a.message = m
	a.isError = false
}

func (a *App) setError(err error) {
	a.message = "Error: " + err.Error()
	a.isError = true
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	state := stateStyle(a.snap.State).Render(strings.ToUpper(a.snap.State.String()))
	if a.snap.State == solver.StateIterating {
		state = a.spinner.View() + " " + state
	}
	header := titleStyle.Render("ordo optimize") + "  " + state
	header += fmt.Sprintf("  iter %d  accepted %d  value ", a.snap.Iteration, a.snap.Accepted)
	header += valueStyle.Render(formatValue(a.snap.Value))
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	switch a.snap.State {
	case solver.StateUnloaded, solver.StateLoading:
		b.WriteString("\n  Loading goals...\n")
	case solver.StateLoadFailed:
		b.WriteString(a.renderLoadFailure())
	case solver.StateCancelled:
		b.WriteString("\n  Optimization cancelled.\n")
	default:
		b.WriteString(a.renderGoals())
	}

	if a.report != nil {
		b.WriteString(a.renderReport())
	}

	if a.message != "" {
		style := messageStyle
		if a.isError {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(a.message))
	}
	b.WriteString("\n")
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(a.help.View(a.keys)))

	return b.String()
}

func (a *App) renderGoals() string {
	if len(a.snap.Goals) == 0 {
		return "\n  No scheduled pending goals.\n"
	}

	var lines []string
	lines = append(lines, headerCellStyle.Render(fmt.Sprintf("  %-28s %-18s %-18s %12s", "GOAL", "START", "END", "VALUE")))
	for _, g := range a.snap.Goals {
		v, _ := g.Value()
		lines = append(lines, goalRowStyle.Render(fmt.Sprintf("%-28s %-18s %-18s %12s",
			truncate(a.goalName(g.ID), 28), formatTime(g.Start), formatTime(g.End()), formatValue(v))))
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

func (a *App) renderLoadFailure() string {
	cause := "unknown error"
	if a.snap.LoadErr != nil {
		cause = a.snap.LoadErr.Error()
	}
	return "\n" + panelStyle.Render(errorStyle.Render("Could not load goals")+"\n"+cause+"\n\nPress r to retry.") + "\n"
}

func (a *App) renderReport() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n  Saved %d goals", len(a.report.Committed)))
	if len(a.report.Failed) == 0 {
		return b.String() + "\n"
	}
	b.WriteString(", failed:\n")
	for _, f := range a.report.Failed {
		b.WriteString(errorStyle.Render(fmt.Sprintf("    %s: %v", a.goalName(f.GoalID), f.Err)) + "\n")
	}
	return b.String()
}

func (a *App) goalName(id string) string {
	if name, ok := a.names[id]; ok && name != "" {
		return name
	}
	return id
}

func (a *App) load() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: a.session.Load(context.Background())}
	}
}

func (a *App) commit() tea.Cmd {
	return func() tea.Msg {
		report, err := a.session.Commit(context.Background())
		return committedMsg{report: report, err: err}
	}
}

func (a *App) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{snap: <-a.updates}
	}
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format("Mon Jan 2 15:04")
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type loadedMsg struct {
	err error
}

type snapshotMsg struct {
	snap solver.Snapshot
}

type committedMsg struct {
	report solver.CommitReport
	err    error
}
