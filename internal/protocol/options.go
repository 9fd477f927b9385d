// internal/protocol/options.go
package protocol

import "time"

// ChannelOptions holds tuning knobs shared by all channel kinds. They are
// transport plumbing, not part of the per-open ChannelConfig.
type ChannelOptions struct {
	// ReadTimeout bounds a single serial read so the reader can notice Close.
	ReadTimeout     time.Duration `json:"read_timeout"`
	ReadBufferSize  int           `json:"read_buffer_size"`
	MaxDatagramSize int           `json:"max_datagram_size"`
	KeepAlive       bool          `json:"keep_alive"`
	KeepAlivePeriod time.Duration `json:"keep_alive_period"`
	DialTimeout     time.Duration `json:"dial_timeout"`
}

// DefaultChannelOptions returns the options used when none are configured
func DefaultChannelOptions() ChannelOptions {
	return ChannelOptions{
		ReadTimeout:     100 * time.Millisecond,
		ReadBufferSize:  4096,
		MaxDatagramSize: 65535,
		KeepAlive:       true,
		KeepAlivePeriod: 30 * time.Second,
		DialTimeout:     10 * time.Second,
	}
}

func (o ChannelOptions) withDefaults() ChannelOptions {
	def := DefaultChannelOptions()
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = def.ReadBufferSize
	}
	if o.MaxDatagramSize <= 0 {
		o.MaxDatagramSize = def.MaxDatagramSize
	}
	if o.KeepAlivePeriod <= 0 {
		o.KeepAlivePeriod = def.KeepAlivePeriod
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = def.DialTimeout
	}
	return o
}
