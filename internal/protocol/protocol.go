// internal/protocol/protocol.go
package protocol

import (
	"context"
	"sync"
	"time"

	"comm-debugger/internal/model"
)

// ByteChannel is one live transport instance. Outcomes of every call are also
// reported as events through the dispatcher the channel was built with.
type ByteChannel interface {
	// Identity
	ID() string
	Kind() model.TransportKind

	// Lifecycle
	Open(ctx context.Context, cfg model.ChannelConfig) error
	Close() error
	State() model.ChannelState

	// Data communication
	Send(ctx context.Context, data []byte) error

	// Diagnostics
	Target() string
	Stats() ChannelStats
}

// PeerSender is implemented by channels that can address one of several peers
type PeerSender interface {
	SendTo(ctx context.Context, data []byte, peer string) error
}

// PeerLister is implemented by channels tracking connected peers
type PeerLister interface {
	Peers() []string
}

// ChannelStats provides channel-level statistics
type ChannelStats struct {
	BytesWritten   int64     `json:"bytes_written"`
	BytesRead      int64     `json:"bytes_read"`
	OperationCount int64     `json:"operation_count"`
	ErrorCount     int64     `json:"error_count"`
	LastActivity   time.Time `json:"last_activity"`
	IsConnected    bool      `json:"is_connected"`
}

type statsRecorder struct {
	mutex sync.Mutex
	stats ChannelStats
}

func (r *statsRecorder) recordWrite(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.stats.BytesWritten += int64(n)
	r.stats.OperationCount++
	r.stats.LastActivity = time.Now()
}

func (r *statsRecorder) recordRead(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.stats.BytesRead += int64(n)
	r.stats.OperationCount++
	r.stats.LastActivity = time.Now()
}

func (r *statsRecorder) recordError() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.stats.ErrorCount++
}

func (r *statsRecorder) setConnected(connected bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.stats.IsConnected = connected
	r.stats.LastActivity = time.Now()
}

func (r *statsRecorder) snapshot() ChannelStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stats
}
