package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yiblet/qrscan/internal/session"
)

// EventBridge forwards session events into the bubbletea loop. Pass Send as
// session.Options.OnEvent and Events to Config.Events.
type EventBridge struct {
	mu     sync.Mutex
	ch     chan session.Event
	closed bool
}

// NewEventBridge creates a bridge buffering up to size events.
func NewEventBridge(size int) *EventBridge {
	return &EventBridge{ch: make(chan session.Event, size)}
}

// Send delivers ev without blocking. When the buffer is full the event is
// dropped; the view re-reads the session on the next event anyway.
func (b *EventBridge) Send(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- ev:
	default:
	}
}

// Events returns the receive side.
func (b *EventBridge) Events() <-chan session.Event {
	return b.ch
}

// Close ends the event stream. Later Sends are ignored.
func (b *EventBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

type sessionEventMsg struct {
	Event session.Event
}

type eventsClosedMsg struct{}

// waitForEvent blocks on the next session event.
func waitForEvent(ch <-chan session.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return sessionEventMsg{Event: ev}
	}
}
