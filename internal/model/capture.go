// internal/model/capture.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// CaptureRecord is one persisted transfer or error event
type CaptureRecord struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	ChannelID   string        `json:"channel_id" db:"channel_id"`
	Kind        TransportKind `json:"kind" db:"kind"`
	Type        EventType     `json:"type" db:"event_type"`
	Direction   Direction     `json:"direction,omitempty" db:"direction"`
	Peer        string        `json:"peer,omitempty" db:"peer"`
	Payload     []byte        `json:"payload,omitempty" db:"payload"`
	Severity    ErrorSeverity `json:"severity,omitempty" db:"severity"`
	Code        string        `json:"code,omitempty" db:"code"`
	Description string        `json:"description,omitempty" db:"description"`
	CapturedAt  time.Time     `json:"captured_at" db:"captured_at"`
}

// NewCaptureRecord converts an envelope; ok is false for event types that
// are not captured.
func NewCaptureRecord(ev Event) (CaptureRecord, bool) {
	rec := CaptureRecord{
		ID:         ev.ID,
		ChannelID:  ev.ChannelID,
		Kind:       ev.Kind,
		Type:       ev.Type,
		CapturedAt: ev.Timestamp,
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now()
	}

	switch {
	case ev.Type == EventTransfer && ev.Transfer != nil:
		rec.Direction = ev.Transfer.Direction
		rec.Peer = ev.Transfer.Peer
		rec.Payload = ev.Transfer.Payload
	case ev.Type == EventError && ev.Error != nil:
		rec.Peer = ev.Error.Peer
		rec.Severity = ev.Error.Severity
		rec.Code = ev.Error.Code
		rec.Description = ev.Error.Description
	default:
		return CaptureRecord{}, false
	}
	return rec, true
}
