package winch

import "sync"

type commandKind int

const (
	cmdWind commandKind = iota
	cmdStop
	cmdRelease
	cmdQuit
)

func (k commandKind) String() string {
	switch k {
	case cmdWind:
		return "wind"
	case cmdStop:
		return "stop"
	case cmdRelease:
		return "release"
	case cmdQuit:
		return "quit"
	default:
		return "unknown"
	}
}

type command struct {
	kind  commandKind
	speed float64 // cmdWind only
}

// mailbox is an unbounded multi-producer, single-consumer queue.
// Producers never block. Once a quit has been posted the mailbox
// refuses further commands, so quit is always the last one.
type mailbox struct {
	mu     sync.Mutex
	items  []command
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// push appends c. It returns false when the mailbox is closed.
func (m *mailbox) push(c command) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, c)
	if c.kind == cmdQuit {
		m.closed = true
	}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// tryPop removes the oldest command without blocking.
func (m *mailbox) tryPop() (command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return command{}, false
	}
	c := m.items[0]
	m.items[0] = command{}
	m.items = m.items[1:]
	return c, true
}

// wait blocks until a command is available and removes it.
func (m *mailbox) wait() command {
	for {
		if c, ok := m.tryPop(); ok {
			return c
		}
		<-m.notify
	}
}

// close refuses further commands.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
