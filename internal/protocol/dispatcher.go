// internal/protocol/dispatcher.go
package protocol

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// ErrDispatcherStopped is returned when publishing to a stopped dispatcher
var ErrDispatcherStopped = errors.New("event dispatcher stopped")

// Handler consumes dispatched events. Handlers run one at a time on the
// dispatcher goroutine and must not call back into a channel.
type Handler func(event model.Event)

type envelope struct {
	event     model.Event
	delivered chan struct{}
	barrier   bool
}

type subscriber struct {
	ch chan model.Event
}

// Dispatcher delivers channel events from one FIFO queue on a single goroutine
type Dispatcher struct {
	queue       chan envelope
	mutex       sync.RWMutex
	handlers    []Handler
	subscribers map[*subscriber]struct{}
	logger      *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity
func NewDispatcher(queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}

	return &Dispatcher{
		queue:       make(chan envelope, queueSize),
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger.With(zap.String("component", "dispatcher")),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Handle registers a handler. Handlers are invoked in registration order.
func (d *Dispatcher) Handle(handler Handler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handlers = append(d.handlers, handler)
}

// Subscribe returns a buffered stream of events and a cancel function.
// A subscriber that falls behind misses events rather than stalling delivery.
func (d *Dispatcher) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	sub := &subscriber{ch: make(chan model.Event, buffer)}

	d.mutex.Lock()
	d.subscribers[sub] = struct{}{}
	d.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mutex.Lock()
			delete(d.subscribers, sub)
			d.mutex.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Stop drains queued events and stops delivery
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.startOnce.Do(func() {
		close(d.stopped)
	})
	<-d.stopped
}

// Publish enqueues an event, blocking while the queue is full
func (d *Dispatcher) Publish(event model.Event) error {
	_, err := d.push(envelope{event: event})
	return err
}

// PublishAndWait enqueues an event and waits until every handler has seen it
func (d *Dispatcher) PublishAndWait(event model.Event) error {
	return d.wait(envelope{event: event, delivered: make(chan struct{})})
}

// Flush waits until every event queued before the call has been delivered
func (d *Dispatcher) Flush() error {
	return d.wait(envelope{barrier: true, delivered: make(chan struct{})})
}

func (d *Dispatcher) wait(env envelope) error {
	delivered, err := d.push(env)
	if err != nil {
		return err
	}

	select {
	case <-delivered:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	}
}

func (d *Dispatcher) push(env envelope) (chan struct{}, error) {
	select {
	case <-d.done:
		return nil, ErrDispatcherStopped
	default:
	}

	select {
	case d.queue <- env:
		return env.delivered, nil
	case <-d.done:
		return nil, ErrDispatcherStopped
	}
}

func (d *Dispatcher) run() {
	defer close(d.stopped)

	for {
		select {
		case env := <-d.queue:
			d.deliver(env)
		case <-d.done:
			for {
				select {
				case env := <-d.queue:
					d.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(env envelope) {
	if env.delivered != nil {
		defer close(env.delivered)
	}
	if env.barrier {
		return
	}

	d.mutex.RLock()
	handlers := d.handlers
	subscribers := make([]*subscriber, 0, len(d.subscribers))
	for sub := range d.subscribers {
		subscribers = append(subscribers, sub)
	}
	d.mutex.RUnlock()

	for _, handler := range handlers {
		d.invoke(handler, env.event)
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()
	for _, sub := range subscribers {
		if _, ok := d.subscribers[sub]; !ok {
			continue
		}
		select {
		case sub.ch <- env.event:
		default:
			d.logger.Warn("Subscriber is slow, dropping event",
				zap.String("event_type", string(env.event.Type)),
				zap.String("channel_id", env.event.ChannelID),
			)
		}
	}
}

func (d *Dispatcher) invoke(handler Handler, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event handler panicked",
				zap.Any("panic", r),
				zap.String("event_type", string(event.Type)),
				zap.Stack("stacktrace"),
			)
		}
	}()
	handler(event)
}
