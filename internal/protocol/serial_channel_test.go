// internal/protocol/serial_channel_test.go
package protocol

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/model"
)

// fakePort implements the parts of serial.Port a SerialChannel uses
type fakePort struct {
	serial.Port

	mutex     sync.Mutex
	written   bytes.Buffer
	writeErr  error
	reads     chan []byte
	readErrs  chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		reads:    make(chan []byte, 8),
		readErrs: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.reads:
		return copy(b, data), nil
	case err := <-p.readErrs:
		return 0, err
	case <-p.closed:
		return 0, errors.New("port closed")
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func testSerialConfig() model.SerialConfig {
	return model.SerialConfig{
		PortName:    "COM3",
		BaudRate:    115200,
		DataBits:    8,
		Parity:      model.ParityNone,
		StopBits:    model.StopBitsOne,
		FlowControl: model.FlowNone,
	}
}

func newTestSerial(t *testing.T, port *fakePort) (*SerialChannel, *recorder, *serial.Mode) {
	t.Helper()

	d, rec := newTestDispatcher(t)
	var opened serial.Mode
	opener := func(name string, mode *serial.Mode) (serial.Port, error) {
		opened = *mode
		return port, nil
	}
	sc := NewSerialChannel(d, DefaultChannelOptions(), zaptest.NewLogger(t), WithPortOpener(opener))
	return sc, rec, &opened
}

func TestSerialChannelOpenAndClose(t *testing.T) {
	port := newFakePort()
	sc, rec, mode := newTestSerial(t, port)

	if err := sc.Open(context.Background(), testSerialConfig()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sc.State() != model.StateOpen {
		t.Fatalf("State() = %s, want OPEN", sc.State())
	}
	if mode.BaudRate != 115200 || mode.DataBits != 8 {
		t.Errorf("mode = %+v, want 115200/8", *mode)
	}
	rec.waitFor(t, "open message", isStateMessage("Successfully opened COM3"))

	if err := sc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.isClosed() {
		t.Error("port not released by Close")
	}
	if n := rec.count(isStateMessage("closed COM3")); n != 1 {
		t.Fatalf("closed events = %d, want 1", n)
	}

	// second Close is a no-op
	if err := sc.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if n := rec.count(isStateMessage("closed COM3")); n != 1 {
		t.Fatalf("closed events after second Close = %d, want 1", n)
	}

	err := sc.Open(context.Background(), testSerialConfig())
	if !errors.Is(err, model.ErrChannelClosed) {
		t.Fatalf("Open() after Close error = %v, want ErrChannelClosed", err)
	}
}

func TestSerialChannelOpenFailure(t *testing.T) {
	d, rec := newTestDispatcher(t)

	attempts := 0
	port := newFakePort()
	opener := func(string, *serial.Mode) (serial.Port, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("device busy")
		}
		return port, nil
	}
	sc := NewSerialChannel(d, DefaultChannelOptions(), zaptest.NewLogger(t), WithPortOpener(opener))

	err := sc.Open(context.Background(), testSerialConfig())
	if !errors.Is(err, model.ErrOpen) {
		t.Fatalf("Open() error = %v, want ErrOpen", err)
	}
	var chErr *model.ChannelError
	if !errors.As(err, &chErr) || chErr.Target != "COM3" {
		t.Fatalf("Open() error target = %+v, want COM3", chErr)
	}
	if sc.State() != model.StateClosed {
		t.Fatalf("State() = %s, want CLOSED", sc.State())
	}

	ev := rec.waitFor(t, "open error", isError(model.OpOpen))
	if !ev.Error.IsFatal() || ev.Error.Peer != "COM3" {
		t.Errorf("error event = %+v", ev.Error)
	}

	// a failed open leaves the channel usable
	if err := sc.Open(context.Background(), testSerialConfig()); err != nil {
		t.Fatalf("retry Open() error = %v", err)
	}
	sc.Close()
}

func TestSerialChannelInvalidConfig(t *testing.T) {
	sc, rec, _ := newTestSerial(t, newFakePort())

	tests := []struct {
		name string
		cfg  model.ChannelConfig
	}{
		{"empty port", model.SerialConfig{BaudRate: 9600, DataBits: 8, Parity: model.ParityNone, StopBits: model.StopBitsOne, FlowControl: model.FlowNone}},
		{"bad data bits", model.SerialConfig{PortName: "COM1", BaudRate: 9600, DataBits: 9, Parity: model.ParityNone, StopBits: model.StopBitsOne, FlowControl: model.FlowNone}},
		{"wrong kind", model.TCPConfig{Role: model.TCPRoleClient, Address: "localhost", Port: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sc.Open(context.Background(), tt.cfg)
			if !errors.Is(err, model.ErrOpen) || !errors.Is(err, model.ErrInvalidConfig) {
				t.Fatalf("Open() error = %v, want ErrOpen wrapping ErrInvalidConfig", err)
			}
		})
	}

	rec.waitFor(t, "open errors", func(model.Event) bool { return rec.count(isError(model.OpOpen)) == len(tests) })
}

func TestSerialChannelFlowControlRejected(t *testing.T) {
	for _, flow := range []model.FlowControl{model.FlowHardware, model.FlowSoftware} {
		t.Run(string(flow), func(t *testing.T) {
			sc, rec, _ := newTestSerial(t, newFakePort())

			cfg := testSerialConfig()
			cfg.FlowControl = flow
			err := sc.Open(context.Background(), cfg)
			if !errors.Is(err, model.ErrOpen) {
				t.Fatalf("Open() error = %v, want ErrOpen", err)
			}
			var chErr *model.ChannelError
			if !errors.As(err, &chErr) || chErr.Code != "FLOW_CONTROL_UNSUPPORTED" {
				t.Fatalf("Open() error = %v, want FLOW_CONTROL_UNSUPPORTED", err)
			}
			if sc.State() != model.StateClosed {
				t.Errorf("State() = %s, want CLOSED", sc.State())
			}

			rec.waitFor(t, "open error", func(ev model.Event) bool {
				return ev.Type == model.EventError && ev.Error.Code == "FLOW_CONTROL_UNSUPPORTED"
			})
			for _, ev := range rec.snapshot() {
				if ev.Type == model.EventState && ev.State.State == model.StateOpen {
					t.Fatalf("unexpected open event: %+v", ev.State)
				}
			}
		})
	}
}

func TestSerialChannelSend(t *testing.T) {
	port := newFakePort()
	sc, rec, _ := newTestSerial(t, port)

	err := sc.Send(context.Background(), []byte("early"))
	if !errors.Is(err, model.ErrNotOpen) {
		t.Fatalf("Send() before Open error = %v, want ErrNotOpen", err)
	}
	rec.waitFor(t, "not open error", func(ev model.Event) bool {
		return ev.Type == model.EventError && ev.Error.Description == "port not open"
	})

	if err := sc.Open(context.Background(), testSerialConfig()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sc.Close()

	if err := sc.Send(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	ev := rec.waitFor(t, "sent transfer", isTransfer(model.DirectionSent, "hello"))
	if ev.Transfer.TransportLabel != "SerialPort" || ev.Transfer.Peer != "COM3" || ev.Transfer.Size() != 5 {
		t.Errorf("transfer = %+v", ev.Transfer)
	}
	if got := port.written.String(); got != "hello" {
		t.Errorf("port received %q, want hello", got)
	}
	if n := rec.count(isTransfer(model.DirectionSent, "early")); n != 0 {
		t.Errorf("payload sent while closed produced %d transfers", n)
	}

	port.mutex.Lock()
	port.writeErr = errors.New("write timeout")
	port.mutex.Unlock()

	if err := sc.Send(context.Background(), []byte("fails")); !errors.Is(err, model.ErrWrite) {
		t.Fatalf("Send() error = %v, want ErrWrite", err)
	}
	ev = rec.waitFor(t, "write error", isError(model.OpSend))
	if ev.Error.IsFatal() {
		t.Error("write error must not be fatal")
	}
	if sc.State() != model.StateOpen {
		t.Fatalf("State() after write error = %s, want OPEN", sc.State())
	}
}

func TestSerialChannelReceive(t *testing.T) {
	port := newFakePort()
	sc, rec, _ := newTestSerial(t, port)

	if err := sc.Open(context.Background(), testSerialConfig()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sc.Close()

	port.reads <- []byte("OK\r\n")
	ev := rec.waitFor(t, "received transfer", isTransfer(model.DirectionReceived, "OK\r\n"))
	if ev.Transfer.Peer != "COM3" {
		t.Errorf("peer = %q, want COM3", ev.Transfer.Peer)
	}
	if stats := sc.Stats(); stats.BytesRead != 4 {
		t.Errorf("BytesRead = %d, want 4", stats.BytesRead)
	}
}

func TestSerialChannelReadErrorClosesPort(t *testing.T) {
	port := newFakePort()
	sc, rec, _ := newTestSerial(t, port)

	if err := sc.Open(context.Background(), testSerialConfig()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	port.readErrs <- errors.New("device removed")

	rec.waitFor(t, "closed after read error", isStateMessage("closed COM3"))
	if sc.State() != model.StateClosed {
		t.Fatalf("State() = %s, want CLOSED", sc.State())
	}

	events := rec.snapshot()
	var errIdx, closeIdx = -1, -1
	for i, ev := range events {
		if isError(model.OpReceive)(ev) {
			errIdx = i
			if !ev.Error.IsFatal() {
				t.Error("read error must be fatal")
			}
		}
		if isStateMessage("closed COM3")(ev) {
			closeIdx = i
		}
	}
	if errIdx < 0 || closeIdx < errIdx {
		t.Fatalf("error at %d, closed at %d; want error before closed", errIdx, closeIdx)
	}

	if err := sc.Close(); err != nil {
		t.Fatalf("Close() after fatal error = %v", err)
	}
}

func TestSerialChannelCloseNeverOpened(t *testing.T) {
	sc, rec, _ := newTestSerial(t, newFakePort())

	if err := sc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("Close() of never-opened channel emitted %d events", n)
	}
}

func TestSerialChannelNoEventsAfterClose(t *testing.T) {
	port := newFakePort()
	sc, rec, _ := newTestSerial(t, port)

	if err := sc.Open(context.Background(), testSerialConfig()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	port.reads <- []byte("data")
	sc.Close()

	after := len(rec.snapshot())
	sc.Send(context.Background(), []byte("late"))
	time.Sleep(30 * time.Millisecond)

	if got := len(rec.snapshot()); got != after {
		t.Fatalf("%d events delivered after Close returned", got-after)
	}
}

func TestBuildSerialMode(t *testing.T) {
	tests := []struct {
		name     string
		cfg      model.SerialConfig
		parity   serial.Parity
		stopBits serial.StopBits
		wantErr  bool
	}{
		{"defaults", testSerialConfig(), serial.NoParity, serial.OneStopBit, false},
		{"even 1.5", model.SerialConfig{Parity: model.ParityEven, StopBits: model.StopBitsOneAndHalf}, serial.EvenParity, serial.OnePointFiveStopBits, false},
		{"mark 2", model.SerialConfig{Parity: model.ParityMark, StopBits: model.StopBitsTwo}, serial.MarkParity, serial.TwoStopBits, false},
		{"odd", model.SerialConfig{Parity: model.ParityOdd}, serial.OddParity, serial.OneStopBit, false},
		{"hardware", model.SerialConfig{FlowControl: model.FlowHardware}, 0, 0, true},
		{"software", model.SerialConfig{FlowControl: model.FlowSoftware}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := buildSerialMode(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("buildSerialMode() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildSerialMode() error = %v", err)
			}
			if mode.Parity != tt.parity || mode.StopBits != tt.stopBits {
				t.Errorf("mode = %+v", mode)
			}
		})
	}
}
