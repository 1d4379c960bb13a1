package tui

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"droneops-gcs/internal/command"
	"droneops-gcs/internal/stream"
	"droneops-gcs/internal/telemetry"
)

type sampleMsg struct{ telemetry.Sample }

type statusMsg struct{ connected bool }

type tickMsg time.Time

type commandResultMsg struct {
	action string
	result command.Result
	err    error
}

type clearMessageMsg struct{ seq int }

const (
	maxLogLines      = 500
	commandTimeout   = 10 * time.Second
	defaultAltitude  = "10"
	highAltThreshold = 100.0
)

var (
	onlineStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

type model struct {
	cmd   Commander
	label string
	now   func() time.Time
	stats func() stream.Stats

	sample    *telemetry.Sample
	lastAt    time.Time
	received  uint64
	connected bool

	health table.Model
	vp     viewport.Model
	logs   []string
	wrap   bool
	width  int
	height int

	altInput  textinput.Model
	altDialog bool

	message string
	msgSeq  int
}

func newModel(cmd Commander, label string, now func() time.Time) model {
	cols := []table.Column{
		{Title: "Check", Width: 16},
		{Title: "OK", Width: 4},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(healthRows(nil)), table.WithHeight(9))
	if label == "" {
		label = "live"
	}
	return model{
		cmd:    cmd,
		label:  label,
		now:    now,
		health: t,
		vp:     viewport.New(0, 0),
	}
}

func healthRows(h *telemetry.Health) []table.Row {
	var checks []telemetry.Check
	if h != nil {
		checks = h.Checks()
	} else {
		checks = telemetry.Health{}.Checks()
	}
	rows := make([]table.Row, 0, len(checks))
	for _, c := range checks {
		v := "-"
		if h != nil {
			v = "no"
			if c.OK {
				v = "yes"
			}
		}
		rows = append(rows, table.Row{c.Name, v})
	}
	return rows
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.resize()
		m.refreshLog()
	case sampleMsg:
		s := msg.Sample
		if m.sample != nil && m.sample.FlightMode != s.FlightMode && s.FlightMode != "" {
			m.appendLog(fmt.Sprintf("flight mode %s -> %s", m.sample.FlightMode, s.FlightMode))
		}
		m.sample = &s
		m.lastAt = m.now()
		m.received++
		m.health.SetRows(healthRows(s.Health))
	case statusMsg:
		if msg.connected != m.connected {
			state := "OFFLINE"
			if msg.connected {
				state = "ONLINE"
			}
			m.appendLog("telemetry " + state)
		}
		m.connected = msg.connected
	case tickMsg:
		return m, tick()
	case commandResultMsg:
		text := msg.result.Message()
		if msg.err != nil && msg.result.Detail == "" && msg.result.Error == "" {
			text = msg.err.Error()
		}
		m.appendLog(fmt.Sprintf("%s: %s", msg.action, text))
		cmd := m.flash(text)
		return m, cmd
	case clearMessageMsg:
		if msg.seq == m.msgSeq {
			m.message = ""
		}
	case tea.KeyMsg:
		if m.altDialog {
			return m.updateAltitudeDialog(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "a":
			cmd := m.send(command.Arm, command.Params{})
			return m, cmd
		case "d":
			cmd := m.send(command.Disarm, command.Params{})
			return m, cmd
		case "l":
			cmd := m.send(command.Land, command.Params{})
			return m, cmd
		case "t":
			m.altInput = textinput.New()
			m.altInput.Placeholder = "altitude (m)"
			m.altInput.SetValue(defaultAltitude)
			m.altInput.CursorEnd()
			m.altInput.Focus()
			m.altDialog = true
			return m, nil
		case "w":
			m.wrap = !m.wrap
			m.refreshLog()
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updateAltitudeDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.altDialog = false
		alt, err := strconv.ParseFloat(strings.TrimSpace(m.altInput.Value()), 64)
		if err != nil || alt <= 0 || math.IsInf(alt, 0) {
			cmd := m.flash("invalid altitude: " + m.altInput.Value())
			return m, cmd
		}
		cmd := m.send(command.Takeoff, command.Params{AltitudeM: alt})
		return m, cmd
	case tea.KeyEsc:
		m.altDialog = false
		return m, nil
	}
	var cmd tea.Cmd
	m.altInput, cmd = m.altInput.Update(msg)
	return m, cmd
}

// send runs the command off the update loop; the result comes back as a message.
func (m *model) send(action string, p command.Params) tea.Cmd {
	if m.cmd == nil {
		return m.flash("commands unavailable")
	}
	c := m.cmd
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := c.Send(ctx, action, p)
		return commandResultMsg{action: action, result: res, err: err}
	}
}

// flash shows text in the status bar for command.MessageTTL. The caller's
// model must be the one returned from Update.
func (m *model) flash(text string) tea.Cmd {
	m.msgSeq++
	m.message = text
	seq := m.msgSeq
	return tea.Tick(command.MessageTTL, func(time.Time) tea.Msg { return clearMessageMsg{seq: seq} })
}

func (m *model) appendLog(line string) {
	ts := m.now().Format("15:04:05")
	m.logs = append(m.logs, labelStyle.Render(ts)+" "+line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *model) refreshLog() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func (m *model) resize() {
	top := lipgloss.Height(m.renderPanels())
	h := m.height - top - 4
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m model) View() string {
	divider := strings.Repeat("─", max(m.width, 1))
	return strings.Join([]string{
		m.renderHeader(),
		m.renderPanels(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

func (m model) renderHeader() string {
	status := offlineStyle.Render("OFFLINE")
	if m.connected {
		status = onlineStyle.Render("ONLINE")
	}
	if !m.connected && m.stats != nil {
		status += " " + linkState(m.stats())
	}
	age := "no data"
	if !m.lastAt.IsZero() {
		age = "updated " + humanize.RelTime(m.lastAt, m.now(), "ago", "from now")
	}
	return fmt.Sprintf("droneops-gcs  %s  %s  %s  %s samples",
		status, labelStyle.Render("["+m.label+"]"), age, humanize.Comma(int64(m.received)))
}

func (m model) renderPanels() string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.renderTelemetry()),
		panelStyle.Render(m.health.View()))
}

func (m model) renderTelemetry() string {
	s := m.sample
	if s == nil {
		return "waiting for telemetry"
	}
	var b strings.Builder
	if p := s.Position; p != nil {
		fmt.Fprintf(&b, "pos   %.5f, %.5f\n", p.Lat, p.Lon)
		fmt.Fprintf(&b, "alt   %.1f m rel  %.1f m abs\n", p.RelativeAlt, p.AbsoluteAlt)
	}
	if a := s.Attitude; a != nil {
		alt := 0.0
		if s.Position != nil {
			alt = s.Position.RelativeAlt
		}
		fmt.Fprintf(&b, "att   r %.1f  p %.1f  y %.1f %s\n", a.Roll, a.Pitch, a.Yaw, altitudeIcon(a.Yaw, alt))
	}
	if v := s.Velocity; v != nil {
		fmt.Fprintf(&b, "vel   n %.1f  e %.1f  d %.1f m/s\n", v.North, v.East, v.Down)
	}
	if bt := s.Battery; bt != nil {
		fmt.Fprintf(&b, "batt  %s %.2f V\n", batteryStyle(bt.RemainingPercent).Render(fmt.Sprintf("%.1f%%", bt.RemainingPercent)), bt.Voltage)
	}
	mode := s.FlightMode
	if mode == "" {
		mode = "-"
	}
	fmt.Fprintf(&b, "mode  %s", mode)
	return b.String()
}

func (m model) renderBottom() string {
	if m.altDialog {
		return "takeoff altitude: " + m.altInput.View() + labelStyle.Render("  enter confirm  esc cancel")
	}
	keys := labelStyle.Render("a arm  d disarm  t takeoff  l land  w wrap  q quit")
	if m.message != "" {
		return messageStyle.Render(m.message) + "  " + keys
	}
	return keys
}

func linkState(st stream.Stats) string {
	switch st.State {
	case stream.StateClosedPendingRetry:
		return labelStyle.Render(fmt.Sprintf("(retry %d in %s)", st.Attempts, st.LastDelay))
	case stream.StateConnecting:
		return labelStyle.Render("(connecting)")
	case stream.StateExhausted:
		return offlineStyle.Render("(gave up)")
	}
	return ""
}

func batteryStyle(pct float64) lipgloss.Style {
	switch {
	case pct < 25:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	case pct < 75:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
}

func headingIcon(h float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	switch {
	case h >= 45 && h < 135:
		return ">"
	case h >= 135 && h < 225:
		return "v"
	case h >= 225 && h < 315:
		return "<"
	default:
		return "^"
	}
}

func altitudeIcon(h, alt float64) string {
	icon := headingIcon(h)
	if alt >= highAltThreshold {
		switch icon {
		case "^":
			return "▲"
		case ">":
			return "▶"
		case "v":
			return "▼"
		case "<":
			return "◀"
		}
	}
	return icon
}
