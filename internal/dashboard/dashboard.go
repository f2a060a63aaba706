// Package dashboard is the console view of a running rover: a live chart
// of the motor speeds, the connected gamepads and the latest log lines.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/cjeanneret/RoverGo/internal/logic/rover"
)

// DefaultRefresh is the telemetry sampling period.
const DefaultRefresh = 100 * time.Millisecond

const (
	headerHeight = 3 // title + subsystems + blank line
	legendHeight = 2
	footerHeight = 9 // log box height
	maxLogs      = 7
	borderSize   = 2
)

// Series shown on the chart, with their colors.
var series = []struct {
	name  string
	color string
}{
	{"left", "46"},   // green
	{"right", "51"},  // cyan
	{"winch", "208"}, // orange
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Config wires the dashboard to the rover.
type Config struct {
	Sample  func() rover.Telemetry
	Logs    <-chan string // see LogWriter
	Refresh time.Duration
}

type model struct {
	cfg      Config
	chart    *streamlinechart.Model
	last     rover.Telemetry
	width    int
	height   int
	logs     []string
	quitting bool
}

type tickMsg time.Time
type logMsg string

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForLog(logs <-chan string) tea.Cmd {
	if logs == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-logs
		if !ok {
			return nil
		}
		return logMsg(line)
	}
}

func newModel(cfg Config) model {
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	chart := streamlinechart.New(80, 15,
		streamlinechart.WithYRange(-1, 1),
	)
	for _, s := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color))
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, style)
	}
	return model{cfg: cfg, chart: &chart}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(m.cfg.Refresh), waitForLog(m.cfg.Logs))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.cfg.Sample != nil {
			m.last = m.cfg.Sample()
			m.chart.PushDataSet("left", m.last.Left)
			m.chart.PushDataSet("right", m.last.Right)
			m.chart.PushDataSet("winch", m.last.WinchSpeed)
			m.chart.DrawAll()
		}
		return m, tick(m.cfg.Refresh)

	case logMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > maxLogs {
			m.logs = m.logs[len(m.logs)-maxLogs:]
		}
		return m, waitForLog(m.cfg.Logs)
	}

	return m, nil
}

func (m model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 15
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 8)
	return width, height
}

func (m model) View() string {
	if m.quitting {
		return "Dashboard closed.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("RoverGo"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  L %+.2f  R %+.2f  winch %s %+.2f  releases %d",
		m.last.Left, m.last.Right, m.last.WinchMode, m.last.WinchSpeed, m.last.Releases)))
	sb.WriteString("\n")
	sb.WriteString(subsystem("drive", m.last.DriveEnabled) + "  " + subsystem("winch", m.last.WinchEnabled) + "  ")
	if len(m.last.Devices) == 0 {
		sb.WriteString(statusStyle.Render("no gamepad"))
	} else {
		sb.WriteString("gamepads: " + strings.Join(m.last.Devices, ", "))
	}
	if m.last.Shutdown {
		sb.WriteString("  " + downStyle.Render("SHUTDOWN"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))
	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	return sb.String()
}

func subsystem(name string, up bool) string {
	if up {
		return upStyle.Render(name + " up")
	}
	return downStyle.Render(name + " down")
}

func renderLegend() string {
	items := make([]string, 0, len(series))
	for _, s := range series {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+s.name)
	}
	return strings.Join(items, "  ")
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(newModel(cfg), tea.WithAltScreen())
	stop := context.AfterFunc(ctx, p.Quit)
	defer stop()
	_, err := p.Run()
	return err
}

// LogWriter feeds debug output to the dashboard. Lines are dropped while
// the dashboard lags behind.
type LogWriter struct {
	lines chan string
}

func NewLogWriter(buffer int) *LogWriter {
	return &LogWriter{lines: make(chan string, buffer)}
}

// Lines is the channel to pass as Config.Logs.
func (w *LogWriter) Lines() <-chan string {
	return w.lines
}

func (w *LogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case w.lines <- line:
		default:
		}
	}
	return len(p), nil
}
