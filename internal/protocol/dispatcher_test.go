// internal/protocol/dispatcher_test.go
package protocol

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/model"
)

func stateEnvelope(msg string) model.Event {
	return model.NewStateEnvelope(model.StateEvent{TransportLabel: "TCP", State: model.StateConnected, Message: msg})
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	d, rec := newTestDispatcher(t)

	for i := 0; i < 100; i++ {
		if err := d.Publish(stateEnvelope(fmt.Sprintf("event-%d", i))); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	events := rec.snapshot()
	if len(events) != 100 {
		t.Fatalf("got %d events, want 100", len(events))
	}
	for i, ev := range events {
		if want := fmt.Sprintf("event-%d", i); ev.State.Message != want {
			t.Fatalf("event %d = %q, want %q", i, ev.State.Message, want)
		}
	}
}

func TestDispatcherHandlersNeverOverlap(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var active, maxActive int
	var mutex sync.Mutex
	handler := func(model.Event) {
		mutex.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mutex.Unlock()

		mutex.Lock()
		active--
		mutex.Unlock()
	}
	d.Handle(handler)
	d.Handle(handler)
	d.Start()
	defer d.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Publish(stateEnvelope("x"))
			}
		}()
	}
	wg.Wait()
	d.Flush()

	if maxActive != 1 {
		t.Fatalf("max concurrent handlers = %d, want 1", maxActive)
	}
}

func TestDispatcherPublishAndWait(t *testing.T) {
	d, rec := newTestDispatcher(t)

	if err := d.PublishAndWait(stateEnvelope("final")); err != nil {
		t.Fatalf("PublishAndWait() error = %v", err)
	}
	if n := rec.count(isStateMessage("final")); n != 1 {
		t.Fatalf("final event delivered %d times before return, want 1", n)
	}
}

func TestDispatcherStopDrainsAndRejects(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var mutex sync.Mutex
	delivered := 0
	d.Handle(func(model.Event) {
		mutex.Lock()
		delivered++
		mutex.Unlock()
	})

	for i := 0; i < 10; i++ {
		if err := d.Publish(stateEnvelope("queued")); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	d.Start()
	d.Stop()

	mutex.Lock()
	got := delivered
	mutex.Unlock()
	if got != 10 {
		t.Fatalf("delivered %d queued events, want 10", got)
	}

	if err := d.Publish(stateEnvelope("late")); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("Publish() after Stop error = %v, want ErrDispatcherStopped", err)
	}
	if err := d.Flush(); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("Flush() after Stop error = %v, want ErrDispatcherStopped", err)
	}
}

func TestDispatcherStopWithoutStart(t *testing.T) {
	d := NewDispatcher(4, zaptest.NewLogger(t))
	d.Stop()
	d.Stop()
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d, rec := newTestDispatcher(t)
	d.Handle(func(model.Event) { panic("boom") })

	d.Publish(stateEnvelope("first"))
	d.Publish(stateEnvelope("second"))
	d.Flush()

	if n := len(rec.snapshot()); n != 2 {
		t.Fatalf("got %d events after panicking handler, want 2", n)
	}
}

func TestDispatcherSubscribe(t *testing.T) {
	d, _ := newTestDispatcher(t)

	events, cancel := d.Subscribe(4)
	d.Publish(stateEnvelope("hello"))
	d.Flush()

	select {
	case ev := <-events:
		if ev.State.Message != "hello" {
			t.Fatalf("subscriber got %q, want hello", ev.State.Message)
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatal("subscription channel still open after cancel")
	}

	// Delivery continues without the cancelled subscriber
	if err := d.PublishAndWait(stateEnvelope("after")); err != nil {
		t.Fatalf("PublishAndWait() error = %v", err)
	}
}

func TestDispatcherSlowSubscriberDoesNotBlock(t *testing.T) {
	d, rec := newTestDispatcher(t)

	_, cancel := d.Subscribe(1)
	defer cancel()

	for i := 0; i < 20; i++ {
		d.Publish(stateEnvelope("burst"))
	}
	d.Flush()

	if n := rec.count(isStateMessage("burst")); n != 20 {
		t.Fatalf("handler saw %d events, want 20", n)
	}
}
