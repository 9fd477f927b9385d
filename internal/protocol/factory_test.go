// internal/protocol/factory_test.go
package protocol

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/model"
)

func TestCreateChannel(t *testing.T) {
	d := NewDispatcher(8, zaptest.NewLogger(t))

	tests := []struct {
		kind      model.TransportKind
		wantState model.ChannelState
		wantErr   bool
	}{
		{model.TransportSerial, model.StateClosed, false},
		{model.TransportTCP, model.StateUnconnected, false},
		{model.TransportUDP, model.StateUnbound, false},
		{model.TransportKind("USB"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ch, err := CreateChannel(tt.kind, d, DefaultChannelOptions(), zaptest.NewLogger(t))
			if tt.wantErr {
				if !errors.Is(err, model.ErrInvalidConfig) {
					t.Fatalf("CreateChannel() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateChannel() error = %v", err)
			}
			if ch.Kind() != tt.kind || ch.State() != tt.wantState || ch.ID() == "" {
				t.Errorf("channel kind=%s state=%s id=%q", ch.Kind(), ch.State(), ch.ID())
			}
		})
	}

	a, _ := CreateChannel(model.TransportTCP, d, DefaultChannelOptions(), zaptest.NewLogger(t))
	b, _ := CreateChannel(model.TransportTCP, d, DefaultChannelOptions(), zaptest.NewLogger(t))
	if a.ID() == b.ID() {
		t.Error("two channels share an ID")
	}
}

func TestParseSerialConfig(t *testing.T) {
	defaults := DefaultConfigDefaults()

	cfg, err := ParseConfig(model.TransportSerial, map[string]interface{}{
		"port_name": "/dev/ttyUSB0",
		"baud_rate": float64(115200),
		"parity":    "Even",
		"stop_bits": "1.5",
	}, defaults)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	got := cfg.(model.SerialConfig)
	want := model.SerialConfig{
		PortName:    "/dev/ttyUSB0",
		BaudRate:    115200,
		DataBits:    8,
		Parity:      model.ParityEven,
		StopBits:    model.StopBitsOneAndHalf,
		FlowControl: model.FlowNone,
	}
	if got != want {
		t.Fatalf("ParseConfig() = %+v, want %+v", got, want)
	}

	cfg, err = ParseConfig(model.TransportSerial, map[string]interface{}{"port": "COM4", "stop_bits": float64(2)}, defaults)
	if err != nil {
		t.Fatalf("ParseConfig() alias error = %v", err)
	}
	if sc := cfg.(model.SerialConfig); sc.PortName != "COM4" || sc.StopBits != model.StopBitsTwo {
		t.Fatalf("ParseConfig() alias = %+v", sc)
	}
}

func TestParseConfigErrors(t *testing.T) {
	defaults := DefaultConfigDefaults()

	tests := []struct {
		name   string
		kind   model.TransportKind
		config map[string]interface{}
	}{
		{"serial missing port", model.TransportSerial, map[string]interface{}{}},
		{"serial fractional baud", model.TransportSerial, map[string]interface{}{"port_name": "COM1", "baud_rate": 9600.5}},
		{"serial bad stop bits", model.TransportSerial, map[string]interface{}{"port_name": "COM1", "stop_bits": "3"}},
		{"serial bad parity", model.TransportSerial, map[string]interface{}{"port_name": "COM1", "parity": "sometimes"}},
		{"tcp client without address", model.TransportTCP, map[string]interface{}{"port": float64(80)}},
		{"tcp bad role", model.TransportTCP, map[string]interface{}{"role": "peer", "address": "x", "port": float64(80)}},
		{"tcp port type", model.TransportTCP, map[string]interface{}{"address": "x", "port": true}},
		{"udp remote without port", model.TransportUDP, map[string]interface{}{"remote_address": "10.0.0.1"}},
		{"udp local port range", model.TransportUDP, map[string]interface{}{"local_port": float64(70000)}},
		{"unknown kind", model.TransportKind("CAN"), map[string]interface{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig(tt.kind, tt.config, defaults); !errors.Is(err, model.ErrInvalidConfig) {
				t.Fatalf("ParseConfig() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseNetworkConfigs(t *testing.T) {
	defaults := DefaultConfigDefaults()

	cfg, err := ParseConfig(model.TransportTCP, map[string]interface{}{"role": "server", "port": "8080"}, defaults)
	if err != nil {
		t.Fatalf("ParseConfig(tcp) error = %v", err)
	}
	if tcp := cfg.(model.TCPConfig); tcp.Role != model.TCPRoleServer || tcp.Address != "0.0.0.0" || tcp.Port != 8080 {
		t.Fatalf("tcp config = %+v", tcp)
	}

	cfg, err = ParseConfig(model.TransportUDP, map[string]interface{}{
		"remote_address": "192.168.1.10",
		"remote_port":    float64(5000),
		"local_port":     float64(5001),
	}, defaults)
	if err != nil {
		t.Fatalf("ParseConfig(udp) error = %v", err)
	}
	udp := cfg.(model.UDPConfig)
	if !udp.HasRemote() || udp.LocalAddress != "0.0.0.0" || udp.LocalPort != 5001 {
		t.Fatalf("udp config = %+v", udp)
	}
}
