// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package tui renders a live view of a health tracking session.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/confighub/cub-deploy/pkg/tracker"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

// SnapshotMsg carries a tracker snapshot into the program.
type SnapshotMsg tracker.Snapshot

type keyMap struct {
	Stop key.Binding
	Quit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Stop: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop tracking")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// Model is the tracking view. It quits once the session ends.
type Model struct {
	title   string
	snap    tracker.Snapshot
	stop    func()
	spinner spinner.Model
	keymap  keyMap
	now     func() time.Time
	done    bool
}

// New builds a view over the current snapshot. stop is called when the
// user stops tracking or quits while the session is still active.
func New(title string, snap tracker.Snapshot, stop func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	if stop == nil {
		stop = func() {}
	}
	return Model{
		title:   title,
		snap:    snap,
		stop:    stop,
		spinner: s,
		keymap:  defaultKeyMap(),
		now:     time.Now,
		done:    finished(snap),
	}
}

func finished(s tracker.Snapshot) bool {
	return !s.Active && s.Outcome != tracker.OutcomeNone
}

// Snapshot returns the last snapshot the view received.
func (m Model) Snapshot() tracker.Snapshot {
	return m.snap
}

func (m Model) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		snap := tracker.Snapshot(msg)
		if m.done && !finished(snap) {
			return m, nil
		}
		m.snap = snap
		if finished(snap) {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			if m.done {
				return m, tea.Quit
			}
			return m, tea.Batch(m.stopCmd(), tea.Quit)
		case key.Matches(msg, m.keymap.Stop):
			if m.done {
				return m, nil
			}
			return m, m.stopCmd()
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// stopCmd runs stop off the event loop; the tracker reports the stop
// through the observer, which sends back into the program.
func (m Model) stopCmd() tea.Cmd {
	stop := m.stop
	return func() tea.Msg {
		stop()
		return nil
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title) + "\n\n")

	nameWidth := len("RESOURCE")
	for _, r := range m.snap.Resources {
		nameWidth = max(nameWidth, len(r.Key()))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%-*s  %-10s %-7s %-6s %s", nameWidth, "RESOURCE", "STATUS", "READY", "AGE", "MESSAGE")) + "\n")
	for _, r := range m.snap.Resources {
		st, ok := m.snap.Statuses[r.Key()]
		phase := "Checking"
		if ok {
			phase = string(st.Phase)
		}
		styled := phaseStyle(st.Phase, ok).Render(fmt.Sprintf("%-10s", phase))
		b.WriteString(fmt.Sprintf("%-*s  %s %-7s %-6s %s\n", nameWidth, r.Key(), styled, st.Ready, st.Age, st.Message))
	}
	b.WriteString("\n")

	if m.done {
		b.WriteString(outcomeLine(m.snap) + "\n")
		return b.String()
	}
	elapsed := ""
	if !m.snap.Started.IsZero() {
		elapsed = fmt.Sprintf(" (%s)", m.now().Sub(m.snap.Started).Truncate(time.Second))
	}
	b.WriteString(fmt.Sprintf("%s Waiting for resources%s\n", m.spinner.View(), elapsed))
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s • %s", m.keymap.Stop.Help().Key+" "+m.keymap.Stop.Help().Desc, m.keymap.Quit.Help().Key+" "+m.keymap.Quit.Help().Desc)) + "\n")
	return b.String()
}

func phaseStyle(p tracker.Phase, known bool) lipgloss.Style {
	if !known {
		return dimStyle
	}
	switch p {
	case tracker.PhaseReady:
		return okStyle
	case tracker.PhaseDegraded:
		return warnStyle
	case tracker.PhaseFailed:
		return errStyle
	case tracker.PhasePending:
		return pendingStyle
	default:
		return dimStyle
	}
}

func outcomeLine(s tracker.Snapshot) string {
	switch s.Outcome {
	case tracker.OutcomeAllReady:
		if missing := len(s.Resources) - len(s.Statuses); missing > 0 {
			return okStyle.Render(fmt.Sprintf("✓ All %d reporting resources are ready (%d never reported status)", len(s.Statuses), missing))
		}
		return okStyle.Render(fmt.Sprintf("✓ All %d resources are ready", len(s.Resources)))
	case tracker.OutcomeTimedOut:
		return warnStyle.Render("⚠ Stopped waiting: not every resource became ready in time")
	case tracker.OutcomeStopped:
		return dimStyle.Render("Tracking stopped")
	default:
		return ""
	}
}

// Relay forwards tracker snapshots to a program that may not exist yet.
// The latest snapshot is replayed on Attach.
type Relay struct {
	mu      sync.Mutex
	program *tea.Program
	last    *tracker.Snapshot
}

// Observe is a tracker.Observer.
func (r *Relay) Observe(s tracker.Snapshot) {
	r.mu.Lock()
	p := r.program
	r.last = &s
	r.mu.Unlock()
	if p != nil {
		p.Send(SnapshotMsg(s))
	}
}

// Attach starts forwarding to p. It may be called before p runs.
func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	last := r.last
	r.mu.Unlock()
	if last != nil {
		go p.Send(SnapshotMsg(*last))
	}
}

// Detach stops forwarding.
func (r *Relay) Detach() {
	r.mu.Lock()
	r.program = nil
	r.mu.Unlock()
}
