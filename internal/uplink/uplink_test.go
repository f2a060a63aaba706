package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/RoverGo/internal/logic/command"
)

func invocation(t *testing.T, id, method string, args ...string) Message {
	t.Helper()
	data, err := json.Marshal(Invocation{MethodName: method, Arguments: args, Identifier: id})
	if err != nil {
		t.Fatal(err)
	}
	return Message{MessageType: MethodInvocation, Data: string(data)}
}

func TestHandle(t *testing.T) {
	out := make(chan command.Command, 8)
	c := &Client{Out: out, State: func() any { return map[string]int{"left": 1} }}

	tests := []struct {
		name      string
		msg       Message
		result    string
		exception string
		cmds      []command.Command
	}{
		{"drive", invocation(t, "a", "drive", "winch", "-0.5"), "ok", "", []command.Command{command.Drive(command.Winch, -0.5)}},
		{"single word", invocation(t, "b", "release"), "ok", "", []command.Command{command.ReleaseWinch()}},
		{"unknown", invocation(t, "c", "fly"), "", "unknown command", nil},
		{"state", invocation(t, "d", "State"), `{"left":1}`, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(tt.msg)
			reply, err := c.handle(context.Background(), raw)
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if reply == nil || reply.MessageType != MethodReturnValue {
				t.Fatalf("reply = %+v, want a return value", reply)
			}
			var rv ReturnValue
			if err := json.Unmarshal([]byte(reply.Data), &rv); err != nil {
				t.Fatal(err)
			}
			var inv Invocation
			_ = json.Unmarshal([]byte(tt.msg.Data), &inv)
			if rv.Identifier != inv.Identifier {
				t.Errorf("identifier = %q, want %q", rv.Identifier, inv.Identifier)
			}
			if tt.exception != "" {
				if rv.Exception == nil || !strings.Contains(*rv.Exception, tt.exception) || rv.Result != nil {
					t.Errorf("return value = %+v, want exception %q", rv, tt.exception)
				}
			} else if rv.Result == nil || *rv.Result != tt.result || rv.Exception != nil {
				t.Errorf("return value = %+v, want result %q", rv, tt.result)
			}
			for _, want := range tt.cmds {
				if got := <-out; got != want {
					t.Errorf("forwarded %v, want %v", got, want)
				}
			}
			if len(out) != 0 {
				t.Errorf("%d unexpected commands forwarded", len(out))
			}
		})
	}
}

func TestHandle_NoReply(t *testing.T) {
	c := &Client{Out: make(chan command.Command)}
	for _, msg := range []Message{
		{MessageType: Text, Data: "hello rover"},
		{MessageType: ConnectionEvent, Data: "joined"},
		{MessageType: MessageType(42)},
	} {
		raw, _ := json.Marshal(msg)
		reply, err := c.handle(context.Background(), raw)
		if err != nil || reply != nil {
			t.Errorf("handle(%+v) = %+v, %v; want no reply", msg, reply, err)
		}
	}
}

func TestHandle_Malformed(t *testing.T) {
	c := &Client{Out: make(chan command.Command)}
	if _, err := c.handle(context.Background(), []byte("not json")); err == nil {
		t.Error("expected an error for a malformed message")
	}
	raw, _ := json.Marshal(Message{MessageType: MethodInvocation, Data: "{"})
	if _, err := c.handle(context.Background(), raw); err == nil {
		t.Error("expected an error for a malformed invocation")
	}
}

func TestClient_SessionAndReconnect(t *testing.T) {
	var sessions atomic.Int32
	replies := make(chan Message, 4)
	upgrader := websocket.Upgrader{}
	call := invocation(t, "42", "drive", "left", "1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if sessions.Add(1) > 1 {
			// Hold the second session open until the client leaves.
			_, _, _ = conn.ReadMessage()
			return
		}
		_ = conn.WriteJSON(Message{MessageType: Text, Data: "welcome"})
		_ = conn.WriteJSON(call)
		var reply Message
		if err := conn.ReadJSON(&reply); err == nil {
			replies <- reply
		}
		// Drop the session: the client must come back.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	out := make(chan command.Command, 4)
	c := &Client{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
		Out:            out,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case cmd := <-out:
		if cmd != command.Drive(command.Left, 1) {
			t.Errorf("forwarded %v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no command forwarded")
	}
	select {
	case reply := <-replies:
		if reply.MessageType != MethodReturnValue || !strings.Contains(reply.Data, `"identifier":"42"`) {
			t.Errorf("reply = %+v", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply received")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("client did not reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// breakableConn fails every write once broken is set.
type breakableConn struct {
	net.Conn
	broken *atomic.Bool
}

func (c breakableConn) Write(p []byte) (int, error) {
	if c.broken.Load() {
		return 0, errors.New("link down")
	}
	return c.Conn.Write(p)
}

func TestClient_WriteFailureReconnects(t *testing.T) {
	var sessions, dials atomic.Int32
	var broken atomic.Bool
	first := make(chan struct{})
	proceed := make(chan struct{})
	upgrader := websocket.Upgrader{}
	call := invocation(t, "7", "release")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if sessions.Add(1) == 1 {
			close(first)
			<-proceed
			_ = conn.WriteJSON(call)
		}
		// Hold the session open until the client leaves.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	out := make(chan command.Command, 4)
	c := &Client{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
		Out:            out,
		Dialer: &websocket.Dialer{
			NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
				if err != nil || dials.Add(1) > 1 {
					return conn, err
				}
				return breakableConn{Conn: conn, broken: &broken}, nil
			},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	// The reply to the next invocation cannot be written.
	broken.Store(true)
	close(proceed)

	select {
	case cmd := <-out:
		if cmd != command.ReleaseWinch() {
			t.Errorf("forwarded %v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no command forwarded")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("client did not reconnect after a failed write")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
