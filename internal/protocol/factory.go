// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// ConfigDefaults fills the fields an open request leaves out
type ConfigDefaults struct {
	BaudRate     int
	DataBits     int
	Parity       model.Parity
	StopBits     model.StopBits
	FlowControl  model.FlowControl
	TCPRole      model.TCPRole
	LocalAddress string
}

// DefaultConfigDefaults mirrors the settings a fresh session starts with
func DefaultConfigDefaults() ConfigDefaults {
	return ConfigDefaults{
		BaudRate:     9600,
		DataBits:     8,
		Parity:       model.ParityNone,
		StopBits:     model.StopBitsOne,
		FlowControl:  model.FlowNone,
		TCPRole:      model.TCPRoleClient,
		LocalAddress: "0.0.0.0",
	}
}

// CreateChannel creates a closed channel of the given kind
func CreateChannel(kind model.TransportKind, dispatcher *Dispatcher, options ChannelOptions, logger *zap.Logger) (ByteChannel, error) {
	switch kind {
	case model.TransportSerial:
		return NewSerialChannel(dispatcher, options, logger), nil
	case model.TransportTCP:
		return NewTCPChannel(dispatcher, options, logger), nil
	case model.TransportUDP:
		return NewUDPChannel(dispatcher, options, logger), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transport: %s", model.ErrInvalidConfig, kind)
	}
}

// ParseConfig builds a ChannelConfig from a decoded JSON object
func ParseConfig(kind model.TransportKind, config map[string]interface{}, defaults ConfigDefaults) (model.ChannelConfig, error) {
	var cfg model.ChannelConfig
	var err error

	switch kind {
	case model.TransportSerial:
		cfg, err = parseSerialConfig(config, defaults)
	case model.TransportTCP:
		cfg, err = parseTCPConfig(config, defaults)
	case model.TransportUDP:
		cfg, err = parseUDPConfig(config, defaults)
	default:
		return nil, fmt.Errorf("%w: unsupported transport: %s", model.ErrInvalidConfig, kind)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSerialConfig(config map[string]interface{}, defaults ConfigDefaults) (model.SerialConfig, error) {
	serialConfig := model.SerialConfig{
		BaudRate:    defaults.BaudRate,
		DataBits:    defaults.DataBits,
		Parity:      defaults.Parity,
		StopBits:    defaults.StopBits,
		FlowControl: defaults.FlowControl,
	}

	// "port" is accepted as an alias
	if port, ok := stringField(config, "port_name", "port"); ok {
		serialConfig.PortName = port
	} else {
		return serialConfig, fmt.Errorf("%w: serial port_name is required", model.ErrInvalidConfig)
	}

	if v, ok, err := intField(config, "baud_rate"); err != nil {
		return serialConfig, err
	} else if ok {
		serialConfig.BaudRate = v
	}

	if v, ok, err := intField(config, "data_bits"); err != nil {
		return serialConfig, err
	} else if ok {
		serialConfig.DataBits = v
	}

	if parity, ok := stringField(config, "parity"); ok {
		serialConfig.Parity = model.Parity(strings.ToLower(parity))
	}

	if raw, ok := config["stop_bits"]; ok {
		var text string
		switch v := raw.(type) {
		case string:
			text = v
		case float64:
			text = strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			text = strconv.Itoa(v)
		default:
			return serialConfig, fmt.Errorf("%w: invalid stop_bits type %T", model.ErrInvalidConfig, raw)
		}
		stopBits, err := model.ParseStopBits(text)
		if err != nil {
			return serialConfig, err
		}
		serialConfig.StopBits = stopBits
	}

	if flow, ok := stringField(config, "flow_control"); ok {
		serialConfig.FlowControl = model.FlowControl(strings.ToLower(flow))
	}

	return serialConfig, nil
}

func parseTCPConfig(config map[string]interface{}, defaults ConfigDefaults) (model.TCPConfig, error) {
	tcpConfig := model.TCPConfig{
		Role: defaults.TCPRole,
	}

	if role, ok := stringField(config, "role"); ok {
		tcpConfig.Role = model.TCPRole(strings.ToLower(role))
	}

	if address, ok := stringField(config, "address", "host"); ok {
		tcpConfig.Address = address
	} else if tcpConfig.Role == model.TCPRoleServer {
		tcpConfig.Address = defaults.LocalAddress
	}

	if v, ok, err := intField(config, "port"); err != nil {
		return tcpConfig, err
	} else if ok {
		tcpConfig.Port = v
	}

	return tcpConfig, nil
}

func parseUDPConfig(config map[string]interface{}, defaults ConfigDefaults) (model.UDPConfig, error) {
	udpConfig := model.UDPConfig{
		LocalAddress: defaults.LocalAddress,
	}

	if address, ok := stringField(config, "remote_address"); ok {
		udpConfig.RemoteAddress = address
	}
	if v, ok, err := intField(config, "remote_port"); err != nil {
		return udpConfig, err
	} else if ok {
		udpConfig.RemotePort = v
	}

	if address, ok := stringField(config, "local_address"); ok {
		udpConfig.LocalAddress = address
	}
	if v, ok, err := intField(config, "local_port"); err != nil {
		return udpConfig, err
	} else if ok {
		udpConfig.LocalPort = v
	}

	return udpConfig, nil
}

func stringField(config map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := config[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// intField accepts JSON numbers (float64), ints and numeric strings
func intField(config map[string]interface{}, key string) (int, bool, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return 0, false, nil
	}

	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false, fmt.Errorf("%w: %s must be an integer", model.ErrInvalidConfig, key)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, fmt.Errorf("%w: invalid %s %q", model.ErrInvalidConfig, key, v)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%w: invalid %s type %T", model.ErrInvalidConfig, key, raw)
	}
}
