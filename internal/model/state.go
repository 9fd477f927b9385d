// internal/model/state.go
package model

// ChannelState represents the transport-specific state of a channel
type ChannelState string

const (
	// Serial
	StateClosed ChannelState = "CLOSED"
	StateOpen   ChannelState = "OPEN"

	// TCP
	StateUnconnected ChannelState = "UNCONNECTED"
	StateHostLookup  ChannelState = "HOST_LOOKUP"
	StateConnecting  ChannelState = "CONNECTING"
	StateConnected   ChannelState = "CONNECTED"
	StateBound       ChannelState = "BOUND"
	StateListening   ChannelState = "LISTENING"
	StateClosing     ChannelState = "CLOSING"

	// UDP receiver
	StateUnbound ChannelState = "UNBOUND"
)

// Describe returns the informational note attached to a state transition
func (s ChannelState) Describe() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "opened"
	case StateUnconnected:
		return "not connected"
	case StateHostLookup:
		return "looking up host"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBound:
		return "bound to address"
	case StateListening:
		return "listening"
	case StateClosing:
		return "about to close"
	case StateUnbound:
		return "receiver not started"
	default:
		return "unknown state"
	}
}

// IsActive reports whether the state holds transport resources
func (s ChannelState) IsActive() bool {
	switch s {
	case StateOpen, StateHostLookup, StateConnecting, StateConnected, StateBound, StateListening:
		return true
	default:
		return false
	}
}
