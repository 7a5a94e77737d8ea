package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
)

const (
	pollWait     = 100 * time.Millisecond
	maxBatch     = 512
	rateInterval = time.Second
)

// MonitorClient is the part of client.Client the monitor drives.
type MonitorClient interface {
	Poll(timeout time.Duration) (client.Event, bool)
	Statistics() client.Statistics
	GetStatus(seq uint8) error
	StartMeasure(seq uint8) error
	StopMeasure(seq uint8) error
}

var _ MonitorClient = (*client.Client)(nil)

type monitorKeys struct {
	Start  key.Binding
	Stop   key.Binding
	Status key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Status, k.Help, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Start, k.Stop, k.Status}, {k.Help, k.Quit}}
}

func defaultMonitorKeys() monitorKeys {
	return monitorKeys{
		Start:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Status: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "get status")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Messages
type (
	eventsMsg []client.Event
	tickMsg   time.Time
	sentMsg   struct {
		cmd protocol.CommandID
		seq uint8
		err error
	}
)

// Monitor is a live view of one connection: device state, the latest
// sample per sensor, the DATA frame rate and the last ACK and ERROR.
type Monitor struct {
	client MonitorClient
	seq    *client.Sequence
	title  string

	keys monitorKeys
	help help.Model
	bar  progress.Model

	status     protocol.StatusPayload
	haveStatus bool
	values     [protocol.MaxSensors]uint32
	seen       uint32
	timestamp  uint32
	dataFrames uint64

	window   int
	windowAt time.Time
	rate     float64

	lastAck   string
	lastError string
	sendError string

	width    int
	quitting bool
}

// NewMonitor builds the model. title is shown in the banner, usually the
// target name.
func NewMonitor(c MonitorClient, title string) *Monitor {
	m := &Monitor{
		client:   c,
		seq:      &client.Sequence{},
		title:    title,
		keys:     defaultMonitorKeys(),
		help:     help.New(),
		windowAt: time.Now(),
	}
	m.setWidth(GetTerminalWidth())
	return m
}

func (m *Monitor) setWidth(width int) {
	m.width = clampWidth(width)
	m.help.Width = m.width
	m.bar = progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(max(m.width-24, 10)))
}

// Init requests a fresh STATUS and starts polling.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.waitForEvents(), tick(), m.send(protocol.CmdGetStatus, m.client.GetStatus))
}

func tick() tea.Cmd {
	return tea.Tick(rateInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitForEvents blocks briefly for one event, then drains what is already
// queued so a fast stream renders once per batch.
func (m *Monitor) waitForEvents() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ev, ok := c.Poll(pollWait)
		if !ok {
			return eventsMsg(nil)
		}
		batch := []client.Event{ev}
		for len(batch) < maxBatch {
			ev, ok := c.Poll(0)
			if !ok {
				break
			}
			batch = append(batch, ev)
		}
		return eventsMsg(batch)
	}
}

func (m *Monitor) send(id protocol.CommandID, fn func(uint8) error) tea.Cmd {
	seq := m.seq.Next()
	return func() tea.Msg {
		return sentMsg{cmd: id, seq: seq, err: fn(seq)}
	}
}

// Update implements tea.Model
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Start):
			return m, m.send(protocol.CmdStartMeasure, m.client.StartMeasure)
		case key.Matches(msg, m.keys.Stop):
			return m, m.send(protocol.CmdStopMeasure, m.client.StopMeasure)
		case key.Matches(msg, m.keys.Status):
			return m, m.send(protocol.CmdGetStatus, m.client.GetStatus)
		}
		return m, nil

	case eventsMsg:
		for _, ev := range msg {
			m.apply(ev)
		}
		return m, m.waitForEvents()

	case tickMsg:
		now := time.Time(msg)
		if elapsed := now.Sub(m.windowAt).Seconds(); elapsed > 0 {
			m.rate = float64(m.window) / elapsed
		}
		m.window = 0
		m.windowAt = now
		return m, tick()

	case sentMsg:
		if msg.err != nil {
			m.sendError = fmt.Sprintf("%s seq=%d: %v", msg.cmd, msg.seq, msg.err)
		} else {
			m.sendError = ""
		}
		return m, nil
	}
	return m, nil
}

func (m *Monitor) apply(ev client.Event) {
	switch ev.Kind {
	case protocol.KindStatus:
		if st, ok := ev.AsStatus(); ok {
			m.status = st
			m.haveStatus = true
		}
	case protocol.KindData:
		if d, ok := ev.AsData(); ok {
			for _, s := range d.Samples {
				m.values[s.Index] = s.Value
				m.seen |= 1 << uint(s.Index)
			}
			m.timestamp = d.Timestamp
			m.dataFrames++
			m.window++
		}
	case protocol.KindAck:
		if a, ok := ev.AsAck(); ok {
			m.lastAck = fmt.Sprintf("%s seq=%d %s", a.CommandID, a.Seq, a.Result)
		}
	case protocol.KindError:
		if e, ok := ev.AsError(); ok {
			m.lastError = fmt.Sprintf("%s aux=%d at %dµs", e.Code, e.Aux, e.Timestamp)
		}
	}
}

// View implements tea.Model
func (m *Monitor) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(NewHeader("Live Monitor", m.title, nil).SetWidth(m.width).Render())
	b.WriteString("\n\n")

	state := "waiting for STATUS"
	if m.haveStatus {
		state = StateStyle(m.status.State.String()).Render(m.status.State.String())
	}
	fmt.Fprintf(&b, "  %s  %s   %s %d   %s %.1f/s   %s %dµs\n\n",
		TableHeaderStyle.Render("State"), state,
		TableHeaderStyle.Render("Sensors"), m.status.SensorCount,
		TableHeaderStyle.Render("Data"), m.rate,
		TableHeaderStyle.Render("t"), m.timestamp,
	)

	b.WriteString(m.renderBars())
	b.WriteString("\n\n")

	stats := m.client.Statistics()
	b.WriteString(renderDetails(map[string]string{
		"Last ACK":    orDash(m.lastAck),
		"Last ERROR":  orDash(m.lastError),
		"Data frames": fmt.Sprintf("%d", m.dataFrames),
		"Link":        fmt.Sprintf("rx %d  crc %d  dropped %d", stats.FramesReceived, stats.CRCErrors, stats.DroppedEvents),
	}))
	if m.sendError != "" {
		b.WriteString("\n")
		b.WriteString(ErrorMessageStyle.Render("Send failed: " + m.sendError))
	}
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func (m *Monitor) renderBars() string {
	active := m.status.ActiveSensors()
	if !m.haveStatus || len(active) == 0 {
		return StepPendingStyle.Render("  no active sensors")
	}
	lines := make([]string, 0, len(active))
	for _, idx := range active {
		bits := m.status.BitsPerSample[idx]
		value := m.values[idx]
		ratio := 0.0
		if full := fullScale(bits); full > 0 && m.seen&(1<<uint(idx)) != 0 {
			ratio = float64(value) / float64(full)
		}
		label := lipgloss.NewStyle().Width(6).Render(fmt.Sprintf("  %2d", idx))
		reading := lipgloss.NewStyle().Width(12).Align(lipgloss.Right).Render(fmt.Sprintf("%d", value))
		if !m.status.Healthy(idx) {
			reading = ErrorMessageStyle.Width(12).Align(lipgloss.Right).Render("FAULT")
		}
		lines = append(lines, label+m.bar.ViewAs(ratio)+reading)
	}
	return strings.Join(lines, "\n")
}

func fullScale(bits uint8) uint64 {
	if bits == 0 || bits > 32 {
		return 0
	}
	return 1<<bits - 1
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RunMonitor runs the monitor full screen until the user quits.
func RunMonitor(c MonitorClient, title string) error {
	_, err := tea.NewProgram(NewMonitor(c, title), tea.WithAltScreen()).Run()
	return err
}
