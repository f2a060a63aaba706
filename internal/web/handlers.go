package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/logic/command"
)

// maxBodyBytes caps the size of a POST /command body.
const maxBodyBytes = 4 << 10

// queueTimeout bounds how long a request waits for the event loop.
const queueTimeout = 2 * time.Second

// CommandRequest is the body of POST /command: one line of the text
// command vocabulary.
type CommandRequest struct {
	Command string `json:"command"`
}

// StateFunc returns the telemetry served on GET /state.
type StateFunc func() any

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	State       StateFunc
	Commands    chan<- command.Command
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If commands is nil, POST /command returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, state StateFunc, commands chan<- command.Command, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		State:       state,
		Commands:    commands,
		staticFS:    staticFS,
	}
}

// HandleState returns the rover telemetry as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		http.Error(w, "state not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.State())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command: the line is parsed and its commands
// are queued for the event loop.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	cmds, err := command.Parse(req.Command)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Commands == nil {
		http.Error(w, "commands not accepted", http.StatusServiceUnavailable)
		return
	}

	timeout := time.NewTimer(queueTimeout)
	defer timeout.Stop()
	queued := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		select {
		case h.Commands <- cmd:
			debug.Command(cmd)
			queued = append(queued, cmd.String())
		case <-timeout.C:
			http.Error(w, "event loop busy", http.StatusServiceUnavailable)
			return
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "queued", "commands": queued})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
