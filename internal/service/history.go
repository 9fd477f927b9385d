// internal/service/history.go
package service

import (
	"sync"

	"comm-debugger/internal/format"
	"comm-debugger/internal/model"
)

// History keeps the most recent events of the session in a ring buffer.
// Lines are formatted on read so display options can change per request.
type History struct {
	mutex  sync.RWMutex
	events []model.Event
	next   int
	full   bool
}

// NewHistory creates a history holding at most size events
func NewHistory(size int) *History {
	if size <= 0 {
		size = 500
	}
	return &History{events: make([]model.Event, size)}
}

// Handle records an event. It is registered as a dispatcher handler.
func (h *History) Handle(ev model.Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.events[h.next] = ev
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

// Events returns the retained events, oldest first
func (h *History) Events() []model.Event {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if !h.full {
		out := make([]model.Event, h.next)
		copy(out, h.events[:h.next])
		return out
	}

	out := make([]model.Event, 0, len(h.events))
	out = append(out, h.events[h.next:]...)
	return append(out, h.events[:h.next]...)
}

// Lines formats the retained events, dropping transfers the filter rejects
func (h *History) Lines(opts format.Options) []string {
	events := h.Events()

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		if line, ok := format.FormatEvent(ev, opts); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// Len returns the number of retained events
func (h *History) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.full {
		return len(h.events)
	}
	return h.next
}

// Capacity returns the maximum number of retained events
func (h *History) Capacity() int {
	return len(h.events)
}

// Clear drops every retained event
func (h *History) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for i := range h.events {
		h.events[i] = model.Event{}
	}
	h.next = 0
	h.full = false
}
