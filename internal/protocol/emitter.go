// internal/protocol/emitter.go
package protocol

import (
	"sync"

	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// emitter stamps events of one channel instance and hands them to the
// dispatcher. Once sealed it drops everything.
type emitter struct {
	channelID  string
	kind       model.TransportKind
	dispatcher *Dispatcher
	logger     *zap.Logger
	mutex      sync.Mutex
	sealed     bool
}

func newEmitter(channelID string, kind model.TransportKind, dispatcher *Dispatcher, logger *zap.Logger) *emitter {
	return &emitter{
		channelID:  channelID,
		kind:       kind,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (e *emitter) stamp(event model.Event) model.Event {
	event.ChannelID = e.channelID
	event.Kind = e.kind
	return event
}

func (e *emitter) emit(event model.Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.sealed {
		return
	}
	if err := e.dispatcher.Publish(e.stamp(event)); err != nil {
		e.logger.Debug("Event not published", zap.Error(err), zap.String("event_type", string(event.Type)))
	}
}

// seal publishes final (if any), refuses later events and returns once the
// dispatcher delivered everything this instance emitted.
func (e *emitter) seal(final *model.Event) {
	e.mutex.Lock()
	if e.sealed {
		e.mutex.Unlock()
		return
	}
	e.sealed = true
	e.mutex.Unlock()

	var err error
	if final != nil {
		err = e.dispatcher.PublishAndWait(e.stamp(*final))
	} else {
		err = e.dispatcher.Flush()
	}
	if err != nil {
		e.logger.Debug("Final event not delivered", zap.Error(err))
	}
}

func (e *emitter) transfer(dir model.Direction, peer string, payload []byte) {
	e.emit(model.NewTransferEnvelope(model.NewTransferEvent(dir, e.kind, peer, payload)))
}

func (e *emitter) state(state model.ChannelState, peer, message string) {
	e.emit(e.stateEvent(state, peer, message))
}

func (e *emitter) stateEvent(state model.ChannelState, peer, message string) model.Event {
	if message == "" {
		message = state.Describe()
	}
	return model.NewStateEnvelope(model.StateEvent{
		TransportLabel: e.kind.Label(),
		Peer:           peer,
		State:          state,
		Message:        message,
	})
}

func (e *emitter) errorEvent(severity model.ErrorSeverity, op model.ErrorOp, peer, code, description string) model.ErrorEvent {
	return model.ErrorEvent{
		TransportLabel: e.kind.Label(),
		Peer:           peer,
		Severity:       severity,
		Op:             op,
		Code:           code,
		Description:    description,
	}
}

func (e *emitter) fail(ev model.ErrorEvent) {
	e.emit(model.NewErrorEnvelope(ev))
}
