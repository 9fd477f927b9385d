// internal/handler/event_bridge.go
package handler

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"comm-debugger/internal/format"
	"comm-debugger/internal/model"
)

// EventSource is the part of the session the bridge consumes
type EventSource interface {
	Subscribe() (<-chan model.Event, func())
}

// EventLine is the payload of an "event" WebSocket message
type EventLine struct {
	ID        string              `json:"id"`
	ChannelID string              `json:"channel_id,omitempty"`
	Kind      model.TransportKind `json:"kind,omitempty"`
	Type      model.EventType     `json:"type"`
	Line      string              `json:"line"`
	Timestamp time.Time           `json:"timestamp"`
}

// EventBridge forwards dispatcher events to WebSocket clients, rendering each
// event with the options of the receiving client.
type EventBridge struct {
	source      EventSource
	connections *ConnectionManager
	logger      *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    func()
	done      chan struct{}
}

// NewEventBridge creates a new event bridge
func NewEventBridge(source EventSource, connections *ConnectionManager, logger *zap.Logger) *EventBridge {
	return &EventBridge{
		source:      source,
		connections: connections,
		logger:      logger.With(zap.String("component", "event-bridge")),
		done:        make(chan struct{}),
	}
}

// Start subscribes to the session and begins forwarding
func (eb *EventBridge) Start() {
	eb.startOnce.Do(func() {
		events, cancel := eb.source.Subscribe()
		eb.cancel = cancel

		go func() {
			defer close(eb.done)
			for ev := range events {
				eb.distributeEvent(ev)
			}
		}()
	})
}

// Stop cancels the subscription and waits for the forwarder to exit
func (eb *EventBridge) Stop() {
	eb.stopOnce.Do(func() {
		if eb.cancel == nil {
			close(eb.done)
			return
		}
		eb.cancel()
	})
	<-eb.done
}

func (eb *EventBridge) distributeEvent(ev model.Event) {
	rendered := make(map[format.Options][]byte)

	eb.connections.Each(func(client *Client) {
		opts := client.Options()

		payload, seen := rendered[opts]
		if !seen {
			payload = eb.render(ev, opts)
			rendered[opts] = payload
		}
		if payload == nil {
			return
		}

		select {
		case client.Send <- payload:
		default:
			eb.logger.Warn("Client send channel full, dropping event",
				zap.String("client_id", client.ID),
				zap.String("event_id", ev.ID.String()),
			)
		}
	})
}

// render returns nil when the options filter the event out
func (eb *EventBridge) render(ev model.Event, opts format.Options) []byte {
	line, ok := format.FormatEvent(ev, opts)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(&WebSocketMessage{
		Type: "event",
		Data: EventLine{
			ID:        ev.ID.String(),
			ChannelID: ev.ChannelID,
			Kind:      ev.Kind,
			Type:      ev.Type,
			Line:      line,
			Timestamp: ev.Timestamp,
		},
		Timestamp: time.Now(),
	})
	if err != nil {
		eb.logger.Error("Failed to marshal event message", zap.Error(err))
		return nil
	}
	return payload
}
