// Package uplink connects the rover to a remote operator hub over a
// websocket. The hub invokes methods on the rover; every method is a line
// of the text command vocabulary, answered with a return value.
package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/logic/command"
)

// DefaultReconnectDelay is the pause between two connection attempts.
const DefaultReconnectDelay = 2 * time.Second

const (
	maxMessageSize = 64 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// MessageType is the kind of a hub message.
type MessageType int

const (
	Text MessageType = iota
	MethodInvocation
	ConnectionEvent
	MethodReturnValue
)

// Message is the envelope of every hub message. Data holds a JSON document
// for invocations and return values.
type Message struct {
	MessageType MessageType `json:"messageType"`
	Data        string      `json:"data"`
}

// Invocation is a remote method call.
type Invocation struct {
	MethodName string   `json:"methodName"`
	Arguments  []string `json:"arguments,omitempty"`
	Identifier string   `json:"identifier"`
}

// ReturnValue answers an Invocation.
type ReturnValue struct {
	Identifier string  `json:"identifier"`
	Result     *string `json:"result"`
	Exception  *string `json:"exception"`
}

// StateMethod returns the rover telemetry instead of running a command.
const StateMethod = "state"

// Client keeps a session with the hub open and forwards the invoked
// commands.
type Client struct {
	URL            string
	ReconnectDelay time.Duration
	Out            chan<- command.Command
	State          func() any // answers StateMethod, may be nil

	Dialer *websocket.Dialer
}

// Run connects, serves the session and reconnects after a failure until
// ctx is done.
func (c *Client) Run(ctx context.Context) error {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		debug.Info("Uplink: %v, reconnecting in %v", err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	debug.Info("Uplink: connected to %s (%s)", c.URL, resp.Status)

	send := make(chan Message, 16)
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// A failed write ends the session: closing conn unblocks the reader.
	writerDone := make(chan struct{})
	var writeErr error
	go func() {
		defer close(writerDone)
		if writeErr = writePump(conn, send, done); writeErr != nil {
			conn.Close()
		}
	}()
	defer func() {
		close(done)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-writerDone:
				if writeErr != nil {
					return fmt.Errorf("write: %w", writeErr)
				}
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by hub")
			}
			return fmt.Errorf("read: %w", err)
		}
		reply, err := c.handle(ctx, data)
		if err != nil {
			debug.Error(fmt.Errorf("uplink: %w", err))
			continue
		}
		if reply == nil {
			continue
		}
		select {
		case send <- *reply:
		case <-writerDone:
			return fmt.Errorf("write: %w", writeErr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writePump is the only writer of conn. It returns the first write error,
// or nil once done is closed.
func writePump(conn *websocket.Conn, send <-chan Message, done <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				debug.Verbose("Uplink: write failed: %v", err)
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-done:
			return nil
		}
	}
}

// handle processes one hub message and returns the reply to send, if any.
func (c *Client) handle(ctx context.Context, data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch msg.MessageType {
	case Text:
		debug.Live("Uplink: %s", msg.Data)
		return nil, nil
	case ConnectionEvent:
		debug.Verbose("Uplink: connection event %s", msg.Data)
		return nil, nil
	case MethodInvocation:
	default:
		debug.Verbose("Uplink: ignoring message type %d", msg.MessageType)
		return nil, nil
	}

	var inv Invocation
	if err := json.Unmarshal([]byte(msg.Data), &inv); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	result, callErr := c.invoke(ctx, inv)

	rv := ReturnValue{Identifier: inv.Identifier}
	if callErr != nil {
		s := callErr.Error()
		rv.Exception = &s
	} else {
		rv.Result = &result
	}
	payload, err := json.Marshal(rv)
	if err != nil {
		return nil, fmt.Errorf("encode return value: %w", err)
	}
	return &Message{MessageType: MethodReturnValue, Data: string(payload)}, nil
}

func (c *Client) invoke(ctx context.Context, inv Invocation) (string, error) {
	if strings.EqualFold(inv.MethodName, StateMethod) {
		if c.State == nil {
			return "", errors.New("state not available")
		}
		b, err := json.Marshal(c.State())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line := strings.Join(append([]string{inv.MethodName}, inv.Arguments...), " ")
	cmds, err := command.Parse(line)
	if err != nil {
		return "", err
	}
	for _, cmd := range cmds {
		debug.Command(cmd)
		select {
		case c.Out <- cmd:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "ok", nil
}
