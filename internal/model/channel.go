// internal/model/channel.go
package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TransportKind represents the transport a channel runs over
type TransportKind string

const (
	TransportSerial TransportKind = "SERIAL"
	TransportTCP    TransportKind = "TCP"
	TransportUDP    TransportKind = "UDP"
)

// Label returns the label shown in event lines
func (k TransportKind) Label() string {
	switch k {
	case TransportSerial:
		return "SerialPort"
	case TransportTCP:
		return "TCP"
	case TransportUDP:
		return "UDP"
	default:
		return string(k)
	}
}

// ParseTransportKind parses a kind from a path segment such as "serial"
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SERIAL":
		return TransportSerial, nil
	case "TCP":
		return TransportTCP, nil
	case "UDP":
		return TransportUDP, nil
	default:
		return "", fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, s)
	}
}

// ChannelConfig is the immutable parameter bundle supplied at open time
type ChannelConfig interface {
	Kind() TransportKind
	Validate() error
}

// Parity represents serial parity
type Parity string

const (
	ParityNone  Parity = "none"
	ParityOdd   Parity = "odd"
	ParityEven  Parity = "even"
	ParityMark  Parity = "mark"
	ParitySpace Parity = "space"
)

// FlowControl represents serial flow control
type FlowControl string

const (
	FlowNone     FlowControl = "none"
	FlowHardware FlowControl = "hardware"
	FlowSoftware FlowControl = "software"
)

// StopBits represents the number of serial stop bits
type StopBits string

const (
	StopBitsOne        StopBits = "1"
	StopBitsOneAndHalf StopBits = "1.5"
	StopBitsTwo        StopBits = "2"
)

var (
	stopOne        = decimal.NewFromInt(1)
	stopOneAndHalf = decimal.RequireFromString("1.5")
	stopTwo        = decimal.NewFromInt(2)
)

// ParseStopBits accepts "1", "1.5", "2" and numeric spellings like "1.50"
func ParseStopBits(s string) (StopBits, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: stop bits %q: %v", ErrInvalidConfig, s, err)
	}

	switch {
	case d.Equal(stopOne):
		return StopBitsOne, nil
	case d.Equal(stopOneAndHalf):
		return StopBitsOneAndHalf, nil
	case d.Equal(stopTwo):
		return StopBitsTwo, nil
	default:
		return "", fmt.Errorf("%w: stop bits must be 1, 1.5 or 2, got %s", ErrInvalidConfig, d.String())
	}
}

// SerialConfig represents serial port parameters
type SerialConfig struct {
	PortName    string      `json:"port_name" mapstructure:"port_name"`
	BaudRate    int         `json:"baud_rate" mapstructure:"baud_rate"`
	DataBits    int         `json:"data_bits" mapstructure:"data_bits"`
	Parity      Parity      `json:"parity" mapstructure:"parity"`
	StopBits    StopBits    `json:"stop_bits" mapstructure:"stop_bits"`
	FlowControl FlowControl `json:"flow_control" mapstructure:"flow_control"`
}

// Kind implements ChannelConfig
func (c SerialConfig) Kind() TransportKind { return TransportSerial }

// Validate implements ChannelConfig
func (c SerialConfig) Validate() error {
	if strings.TrimSpace(c.PortName) == "" {
		return fmt.Errorf("%w: port name is required", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 || c.BaudRate > 4000000 {
		return fmt.Errorf("%w: baud rate %d out of range", ErrInvalidConfig, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: data bits must be 5-8, got %d", ErrInvalidConfig, c.DataBits)
	}

	switch c.Parity {
	case ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace:
	default:
		return fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, c.Parity)
	}

	if _, err := ParseStopBits(string(c.StopBits)); err != nil {
		return err
	}

	switch c.FlowControl {
	case FlowNone, FlowHardware, FlowSoftware:
	default:
		return fmt.Errorf("%w: unknown flow control %q", ErrInvalidConfig, c.FlowControl)
	}

	return nil
}

// TCPRole selects the side a TCP channel plays
type TCPRole string

const (
	TCPRoleClient TCPRole = "client"
	TCPRoleServer TCPRole = "server"
)

// TCPConfig represents TCP client or server parameters. For the client role
// Address/Port name the remote host, for the server role the listen endpoint.
type TCPConfig struct {
	Role    TCPRole `json:"role" mapstructure:"role"`
	Address string  `json:"address" mapstructure:"address"`
	Port    int     `json:"port" mapstructure:"port"`
}

// Kind implements ChannelConfig
func (c TCPConfig) Kind() TransportKind { return TransportTCP }

// Validate implements ChannelConfig
func (c TCPConfig) Validate() error {
	switch c.Role {
	case TCPRoleClient:
		if strings.TrimSpace(c.Address) == "" {
			return fmt.Errorf("%w: host address is required", ErrInvalidConfig)
		}
		if err := validatePort(c.Port, false); err != nil {
			return err
		}
	case TCPRoleServer:
		if err := validatePort(c.Port, true); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown tcp role %q", ErrInvalidConfig, c.Role)
	}
	return nil
}

// AllPeers addresses every connected peer of a TCP server
const AllPeers = "all"

// Endpoint returns address:port
func (c TCPConfig) Endpoint() string {
	return JoinHostPort(c.Address, c.Port)
}

// UDPConfig represents a UDP receive endpoint plus the default send target
type UDPConfig struct {
	RemoteAddress string `json:"remote_address" mapstructure:"remote_address"`
	RemotePort    int    `json:"remote_port" mapstructure:"remote_port"`
	LocalAddress  string `json:"local_address" mapstructure:"local_address"`
	LocalPort     int    `json:"local_port" mapstructure:"local_port"`
}

// Kind implements ChannelConfig
func (c UDPConfig) Kind() TransportKind { return TransportUDP }

// Validate implements ChannelConfig. The remote side is optional; without it
// sends must name their target explicitly.
func (c UDPConfig) Validate() error {
	if err := validatePort(c.LocalPort, true); err != nil {
		return err
	}
	if c.RemoteAddress != "" {
		if err := validatePort(c.RemotePort, false); err != nil {
			return err
		}
	}
	return nil
}

// HasRemote reports whether a default send target is configured
func (c UDPConfig) HasRemote() bool {
	return c.RemoteAddress != "" && c.RemotePort > 0
}

func validatePort(port int, allowZero bool) error {
	if port == 0 && allowZero {
		return nil
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
	}
	return nil
}

// JoinHostPort formats an address/port pair the way peers are displayed
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
