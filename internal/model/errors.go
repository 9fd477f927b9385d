// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. A *ChannelError matches the sentinel of its Kind with errors.Is.
var (
	ErrOpen          = errors.New("cannot open channel")
	ErrNotOpen       = errors.New("channel not open")
	ErrWrite         = errors.New("write failed")
	ErrSend          = errors.New("send failed")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrReceive       = errors.New("receive failed")
	ErrChannelClosed = errors.New("channel closed")
	ErrInvalidConfig = errors.New("invalid channel config")
)

// ChannelError carries the native code/description pair reported by the transport
type ChannelError struct {
	Kind        error
	Transport   TransportKind
	Target      string
	Code        string
	Description string
	Err         error
}

// NewChannelError builds a ChannelError, filling Description from err when empty
func NewChannelError(kind error, transport TransportKind, target, code string, err error) *ChannelError {
	ce := &ChannelError{
		Kind:      kind,
		Transport: transport,
		Target:    target,
		Code:      code,
		Err:       err,
	}
	if err != nil {
		ce.Description = err.Error()
	} else {
		ce.Description = kind.Error()
	}
	return ce
}

func (e *ChannelError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Transport.Label(), e.Kind)
	if e.Target != "" {
		msg += " " + e.Target
	}
	if e.Description != "" && e.Description != e.Kind.Error() {
		msg += ": " + e.Description
	}
	return msg
}

// Is matches the sentinel kind
func (e *ChannelError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the native transport error
func (e *ChannelError) Unwrap() error {
	return e.Err
}
