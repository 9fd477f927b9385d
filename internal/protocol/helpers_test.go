// internal/protocol/helpers_test.go
package protocol

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/model"
)

// recorder collects dispatched events for assertions
type recorder struct {
	mutex  sync.Mutex
	events []model.Event
	notify chan struct{}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recorder) {
	t.Helper()

	rec := &recorder{notify: make(chan struct{}, 1)}
	d := NewDispatcher(64, zaptest.NewLogger(t))
	d.Handle(rec.handle)
	d.Start()
	t.Cleanup(d.Stop)
	return d, rec
}

func (r *recorder) handle(ev model.Event) {
	r.mutex.Lock()
	r.events = append(r.events, ev)
	r.mutex.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) snapshot() []model.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// waitFor blocks until match returns true for some recorded event
func (r *recorder) waitFor(t *testing.T, what string, match func(model.Event) bool) model.Event {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		for _, ev := range r.snapshot() {
			if match(ev) {
				return ev
			}
		}
		select {
		case <-r.notify:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %d events", what, len(r.snapshot()))
		}
	}
}

func (r *recorder) count(match func(model.Event) bool) int {
	n := 0
	for _, ev := range r.snapshot() {
		if match(ev) {
			n++
		}
	}
	return n
}

func isState(state model.ChannelState) func(model.Event) bool {
	return func(ev model.Event) bool {
		return ev.Type == model.EventState && ev.State.State == state
	}
}

func isStateMessage(message string) func(model.Event) bool {
	return func(ev model.Event) bool {
		return ev.Type == model.EventState && ev.State.Message == message
	}
}

func isTransfer(dir model.Direction, payload string) func(model.Event) bool {
	return func(ev model.Event) bool {
		return ev.Type == model.EventTransfer && ev.Transfer.Direction == dir && string(ev.Transfer.Payload) == payload
	}
}

func isError(op model.ErrorOp) func(model.Event) bool {
	return func(ev model.Event) bool {
		return ev.Type == model.EventError && ev.Error.Op == op
	}
}

func isAnyTransfer(ev model.Event) bool {
	return ev.Type == model.EventTransfer
}
