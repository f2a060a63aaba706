package serialport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/RoverGo/internal/logic/command"
)

// chunkReader returns its input a few bytes at a time, like a slow line.
type chunkReader struct {
	data  string
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, io.EOF
	}
	n := min(r.chunk, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func collect(t *testing.T, input string) []command.Command {
	t.Helper()
	out := make(chan command.Command, 32)
	if err := Serve(context.Background(), &chunkReader{data: input, chunk: 3}, out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	close(out)
	var got []command.Command
	for cmd := range out {
		got = append(got, cmd)
	}
	return got
}

func TestServe_ParsesLines(t *testing.T) {
	got := collect(t, "drive left 0.5\r\nrelease\n\ndistance=42\nstop\n")
	want := []command.Command{
		command.Drive(command.Left, 0.5),
		command.ReleaseWinch(),
		command.Drive(command.Left, 0), command.Drive(command.Right, 0), command.Drive(command.Winch, 0),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestServe_IncompleteLineIgnored(t *testing.T) {
	if got := collect(t, "release\ndrive right 1"); len(got) != 1 {
		t.Errorf("got %v, want only the release", got)
	}
}

func TestServe_LongLineDiscarded(t *testing.T) {
	input := strings.Repeat("x", 300) + " release\nrelease\n"
	got := collect(t, input)
	if len(got) != 1 || got[0] != command.ReleaseWinch() {
		t.Errorf("got %v, want one release", got)
	}
}

// timeoutReader behaves like a port with a read timeout and no traffic.
type timeoutReader struct{}

func (timeoutReader) Read([]byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, timeoutReader{}, make(chan command.Command)) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("port unplugged") }

func TestServe_ReadError(t *testing.T) {
	err := Serve(context.Background(), failingReader{}, make(chan command.Command))
	if err == nil || !strings.Contains(err.Error(), "port unplugged") {
		t.Errorf("Serve = %v, want the read error", err)
	}
}
