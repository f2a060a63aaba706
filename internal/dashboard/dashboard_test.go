package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cjeanneret/RoverGo/internal/logic/rover"
)

func TestModel_TickSamplesTelemetry(t *testing.T) {
	samples := 0
	m := newModel(Config{Sample: func() rover.Telemetry {
		samples++
		return rover.Telemetry{
			DriveEnabled: true,
			Left:         0.5,
			Right:        -0.25,
			WinchMode:    "winding",
			WinchSpeed:   1,
			Devices:      []string{"/dev/input/event3"},
		}
	}})

	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick did not schedule the next one")
	}
	if samples != 1 {
		t.Fatalf("sampled %d times, want 1", samples)
	}

	view := next.View()
	for _, want := range []string{"+0.50", "-0.25", "winding", "/dev/input/event3", "drive up", "winch down"} {
		if !strings.Contains(view, want) {
			t.Errorf("view does not contain %q", want)
		}
	}
}

func TestModel_NoGamepad(t *testing.T) {
	m := newModel(Config{Sample: func() rover.Telemetry { return rover.Telemetry{Shutdown: true} }})
	next, _ := m.Update(tickMsg(time.Now()))
	view := next.View()
	if !strings.Contains(view, "no gamepad") || !strings.Contains(view, "SHUTDOWN") {
		t.Errorf("view = %q", view)
	}
}

func TestModel_LogsKeepTheLatest(t *testing.T) {
	logs := make(chan string)
	var m tea.Model = newModel(Config{Logs: logs})
	for i := 0; i < maxLogs+3; i++ {
		var cmd tea.Cmd
		m, cmd = m.Update(logMsg(strings.Repeat("x", i+1)))
		if cmd == nil {
			t.Fatal("log message did not wait for the next line")
		}
	}
	got := m.(model).logs
	if len(got) != maxLogs {
		t.Fatalf("kept %d lines, want %d", len(got), maxLogs)
	}
	if got[len(got)-1] != strings.Repeat("x", maxLogs+3) {
		t.Errorf("last line = %q", got[len(got)-1])
	}
}

func TestModel_QuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		next, cmd := newModel(Config{}).Update(key)
		if cmd == nil {
			t.Fatalf("%s: no command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: command is not quit", key)
		}
		if !strings.Contains(next.View(), "closed") {
			t.Errorf("%s: view after quit = %q", key, next.View())
		}
	}
}

func TestModel_ResizeClampsChart(t *testing.T) {
	next, _ := newModel(Config{}).Update(tea.WindowSizeMsg{Width: 10, Height: 5})
	w, h := next.(model).chartSize()
	if w != 40 || h != 8 {
		t.Errorf("chart size = %dx%d, want 40x8", w, h)
	}
}

func TestLogWriter(t *testing.T) {
	w := NewLogWriter(2)
	n, err := w.Write([]byte("first\n\nsecond\nthird\n"))
	if err != nil || n != len("first\n\nsecond\nthird\n") {
		t.Fatalf("Write = %d, %v", n, err)
	}
	lines := w.Lines()
	if got := <-lines; got != "first" {
		t.Errorf("line 1 = %q", got)
	}
	if got := <-lines; got != "second" {
		t.Errorf("line 2 = %q", got)
	}
	select {
	case extra := <-lines:
		t.Errorf("line beyond the buffer kept: %q", extra)
	default:
	}
}
