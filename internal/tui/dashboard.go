// Package tui renders the operator dashboard with bubbletea.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"droneops-gcs/internal/command"
	"droneops-gcs/internal/stream"
	"droneops-gcs/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// statsProvider is implemented by sources that reconnect, such as
// *stream.Client.
type statsProvider interface {
	Stats() stream.Stats
}

// Commander sends operator commands.
type Commander interface {
	Send(ctx context.Context, action string, p command.Params) (command.Result, error)
}

// Dashboard wires a telemetry source and a command client to the TUI.
type Dashboard struct {
	program *tea.Program
	src     stream.Source
	unsub   []func()
}

// Options configures the dashboard.
type Options struct {
	// SourceLabel names the feed, for example "live" or "local".
	SourceLabel string
	AltScreen   bool
}

// New builds the program. Samples and status changes from src are forwarded
// as messages; Run starts the UI.
func New(src stream.Source, cmd Commander, opts Options) *Dashboard {
	m := sourceModel(src, cmd, opts.SourceLabel, time.Now)
	var popts []tea.ProgramOption
	if opts.AltScreen {
		popts = append(popts, tea.WithAltScreen())
	}
	d := &Dashboard{program: tea.NewProgram(m, popts...), src: src}
	d.attach(d.program)
	return d
}

// sourceModel seeds the link indicator from the source state, since a source
// connected before the dashboard subscribed has already announced its open.
func sourceModel(src stream.Source, cmd Commander, label string, now func() time.Time) model {
	m := newModel(cmd, label, now)
	if sp, ok := src.(statsProvider); ok {
		m.stats = sp.Stats
	}
	m.connected = src.State() == stream.StateOpen
	return m
}

func (d *Dashboard) attach(p teaProgram) {
	d.unsub = append(d.unsub,
		d.src.Subscribe(func(s telemetry.Sample) { p.Send(sampleMsg{s}) }),
		d.src.SubscribeToStatus(func(ok bool) { p.Send(statusMsg{ok}) }),
	)
}

// Run blocks until the operator quits.
func (d *Dashboard) Run() error {
	defer d.detach()
	_, err := d.program.Run()
	return err
}

func (d *Dashboard) detach() {
	for _, u := range d.unsub {
		u()
	}
	d.unsub = nil
}
