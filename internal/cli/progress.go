// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// progress.go - Live pipeline status display while a question streams.
//
// A small bubbletea program owns the status line so the spinner keeps
// animating between server events. It writes to stderr, keeping stdout
// clean for the answer itself.

package cli

import (
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type statusMsg string

type statusDone struct{}

type statusModel struct {
	spinner spinner.Model
	status  string
}

func newStatusModel(initial string) statusModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(StatusStyle),
	)
	return statusModel{spinner: sp, status: initial}
}

func (m statusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case statusDone:
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m statusModel) View() string {
	return m.spinner.View() + StatusStyle.Render(m.status)
}

// StatusView drives the status line from outside the bubbletea loop.
type StatusView struct {
	program *tea.Program
	done    chan struct{}
}

// NewStatusView starts the status display with an initial label.
func NewStatusView(initial string) *StatusView {
	p := tea.NewProgram(newStatusModel(initial), tea.WithOutput(os.Stderr))
	sv := &StatusView{program: p, done: make(chan struct{})}
	go func() {
		defer close(sv.done)
		_, _ = p.Run()
	}()
	return sv
}

// SetStatus replaces the status label.
func (s *StatusView) SetStatus(status string) {
	s.program.Send(statusMsg(status))
}

// Stop clears the status line and waits for the display to exit.
func (s *StatusView) Stop() {
	s.program.Send(statusDone{})
	<-s.done
}

// statusPrinter abstracts the live display so piped output gets plain
// stderr lines instead of a spinner.
type statusPrinter interface {
	SetStatus(status string)
	Stop()
}

type plainStatusPrinter struct {
	last string
}

func (p *plainStatusPrinter) SetStatus(status string) {
	if status == p.last {
		return
	}
	p.last = status
	os.Stderr.WriteString(status + "\n")
}

func (p *plainStatusPrinter) Stop() {}

// newStatusPrinter picks the spinner display on a terminal and plain
// lines otherwise.
func newStatusPrinter(initial string) statusPrinter {
	if IsStdoutTTY() {
		return NewStatusView(initial)
	}
	p := &plainStatusPrinter{}
	p.SetStatus(initial)
	return p
}
