// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Direction tells whether a payload was sent or received
type Direction string

const (
	DirectionSent     Direction = "SENT"
	DirectionReceived Direction = "RECEIVED"
)

// EventType represents the type of a channel event
type EventType string

const (
	EventTransfer EventType = "transfer"
	EventError    EventType = "error"
	EventState    EventType = "state"
)

// ErrorSeverity tells whether an error forced the channel closed
type ErrorSeverity string

const (
	SeverityFatal    ErrorSeverity = "FATAL"
	SeverityNonFatal ErrorSeverity = "NON_FATAL"
)

// ErrorOp tags which path of a channel produced an error
type ErrorOp string

const (
	OpOpen    ErrorOp = "OPEN"
	OpSend    ErrorOp = "SEND"
	OpReceive ErrorOp = "RECEIVE"
	OpAccept  ErrorOp = "ACCEPT"
	OpClose   ErrorOp = "CLOSE"
)

// TransferEvent is one observed unit of sent or received payload
type TransferEvent struct {
	Direction      Direction `json:"direction"`
	TransportLabel string    `json:"transport"`
	Peer           string    `json:"peer"`
	Payload        []byte    `json:"payload"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewTransferEvent copies payload so later writes to the caller's buffer
// cannot change the event.
func NewTransferEvent(dir Direction, kind TransportKind, peer string, payload []byte) TransferEvent {
	data := make([]byte, len(payload))
	copy(data, payload)

	return TransferEvent{
		Direction:      dir,
		TransportLabel: kind.Label(),
		Peer:           peer,
		Payload:        data,
		Timestamp:      time.Now(),
	}
}

// Size returns the payload length
func (e TransferEvent) Size() int {
	return len(e.Payload)
}

// ErrorEvent reports one failure occurrence
type ErrorEvent struct {
	TransportLabel string        `json:"transport"`
	Peer           string        `json:"peer,omitempty"`
	Severity       ErrorSeverity `json:"severity"`
	Op             ErrorOp       `json:"op"`
	Code           string        `json:"code"`
	Description    string        `json:"description"`
	Timestamp      time.Time     `json:"timestamp"`
}

// IsFatal reports whether the error closed the channel
func (e ErrorEvent) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// StateEvent is an informational note about a state change or outcome
type StateEvent struct {
	TransportLabel string       `json:"transport"`
	Peer           string       `json:"peer,omitempty"`
	State          ChannelState `json:"state"`
	Message        string       `json:"message"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Event is the envelope delivered by the dispatcher
type Event struct {
	ID        uuid.UUID      `json:"id"`
	ChannelID string         `json:"channel_id"`
	Kind      TransportKind  `json:"kind"`
	Type      EventType      `json:"type"`
	Transfer  *TransferEvent `json:"transfer,omitempty"`
	Error     *ErrorEvent    `json:"error,omitempty"`
	State     *StateEvent    `json:"state,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewTransferEnvelope wraps a transfer event
func NewTransferEnvelope(ev TransferEvent) Event {
	return Event{ID: uuid.New(), Type: EventTransfer, Transfer: &ev, Timestamp: ev.Timestamp}
}

// NewErrorEnvelope wraps an error event
func NewErrorEnvelope(ev ErrorEvent) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return Event{ID: uuid.New(), Type: EventError, Error: &ev, Timestamp: ev.Timestamp}
}

// NewStateEnvelope wraps a state event
func NewStateEnvelope(ev StateEvent) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return Event{ID: uuid.New(), Type: EventState, State: &ev, Timestamp: ev.Timestamp}
}

// TrafficTotals holds cumulative byte counts for the session
type TrafficTotals struct {
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
}
