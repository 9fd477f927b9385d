// internal/stats/traffic.go
package stats

import (
	"go.uber.org/atomic"

	"comm-debugger/internal/model"
)

// TrafficCounter accumulates bytes sent and received across every channel of
// a session. Opening or closing channels does not reset it.
type TrafficCounter struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

// NewTrafficCounter creates a zeroed counter
func NewTrafficCounter() *TrafficCounter {
	return &TrafficCounter{}
}

// Record adds the payload size of a transfer to the matching total
func (c *TrafficCounter) Record(ev model.TransferEvent) {
	size := uint64(ev.Size())
	switch ev.Direction {
	case model.DirectionSent:
		c.sent.Add(size)
	case model.DirectionReceived:
		c.received.Add(size)
	}
}

// Handle records transfer envelopes and ignores everything else. It is
// registered as a dispatcher handler.
func (c *TrafficCounter) Handle(ev model.Event) {
	if ev.Type == model.EventTransfer && ev.Transfer != nil {
		c.Record(*ev.Transfer)
	}
}

// Snapshot returns the current totals
func (c *TrafficCounter) Snapshot() model.TrafficTotals {
	return model.TrafficTotals{
		BytesSent:     c.sent.Load(),
		BytesReceived: c.received.Load(),
	}
}

// Reset zeroes both totals
func (c *TrafficCounter) Reset() {
	c.sent.Store(0)
	c.received.Store(0)
}
