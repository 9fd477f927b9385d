// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"comm-debugger/internal/model"
)

// CaptureRepository defines capture log data access operations
type CaptureRepository interface {
	// Write operations
	Save(ctx context.Context, record *model.CaptureRecord) error
	SaveBatch(ctx context.Context, records []*model.CaptureRecord) error

	// Listing and filtering
	List(ctx context.Context, filter *CaptureFilter) ([]*model.CaptureRecord, error)
	Count(ctx context.Context) (int64, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// CaptureFilter represents capture listing filters
type CaptureFilter struct {
	ChannelID *string              `json:"channel_id,omitempty"`
	Kind      *model.TransportKind `json:"kind,omitempty"`
	Type      *model.EventType     `json:"type,omitempty"`
	Since     *time.Time           `json:"since,omitempty"`
	Limit     int                  `json:"limit"`
}

const (
	defaultCaptureLimit = 100
	maxCaptureLimit     = 1000
)

// EffectiveLimit clamps Limit to a usable page size
func (f *CaptureFilter) EffectiveLimit() int {
	switch {
	case f == nil || f.Limit <= 0:
		return defaultCaptureLimit
	case f.Limit > maxCaptureLimit:
		return maxCaptureLimit
	default:
		return f.Limit
	}
}
