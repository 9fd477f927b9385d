// internal/protocol/serial_channel.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// PortOpener opens a serial port. serial.Open in production, a fake in tests.
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// SerialOption customizes a SerialChannel
type SerialOption func(*SerialChannel)

// WithPortOpener replaces the function used to acquire the port
func WithPortOpener(opener PortOpener) SerialOption {
	return func(sc *SerialChannel) {
		sc.opener = opener
	}
}

// SerialChannel implements ByteChannel for serial ports
type SerialChannel struct {
	id      string
	options ChannelOptions
	opener  PortOpener
	logger  *zap.Logger
	events  *emitter
	stats   statsRecorder

	mutex      sync.RWMutex
	writeMutex sync.Mutex
	config     model.SerialConfig
	port       serial.Port
	state      model.ChannelState
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	terminated chan struct{}
}

// NewSerialChannel creates a closed serial channel
func NewSerialChannel(dispatcher *Dispatcher, options ChannelOptions, logger *zap.Logger, opts ...SerialOption) *SerialChannel {
	id := uuid.New().String()
	logger = logger.With(
		zap.String("protocol", "serial"),
		zap.String("channel_id", id),
	)

	sc := &SerialChannel{
		id:         id,
		options:    options.withDefaults(),
		opener:     serial.Open,
		logger:     logger,
		events:     newEmitter(id, model.TransportSerial, dispatcher, logger),
		state:      model.StateClosed,
		terminated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// ID returns the channel instance ID
func (sc *SerialChannel) ID() string { return sc.id }

// Kind returns the transport kind
func (sc *SerialChannel) Kind() model.TransportKind { return model.TransportSerial }

// State returns the current state
func (sc *SerialChannel) State() model.ChannelState {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.state
}

// Target returns the port name
func (sc *SerialChannel) Target() string {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.config.PortName
}

// Stats returns channel statistics
func (sc *SerialChannel) Stats() ChannelStats {
	return sc.stats.snapshot()
}

// Open acquires the port with the given line parameters
func (sc *SerialChannel) Open(ctx context.Context, cfg model.ChannelConfig) error {
	serialConfig, ok := asSerialConfig(cfg)
	if !ok {
		return sc.openFailed("", "INVALID_CONFIG", fmt.Errorf("%w: expected serial config, got %T", model.ErrInvalidConfig, cfg))
	}
	if err := serialConfig.Validate(); err != nil {
		return sc.openFailed(serialConfig.PortName, "INVALID_CONFIG", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.closed {
		return model.NewChannelError(model.ErrChannelClosed, model.TransportSerial, serialConfig.PortName, "CLOSED", nil)
	}
	if sc.state == model.StateOpen {
		return nil
	}

	sc.logger.Info("Opening serial port",
		zap.String("port", serialConfig.PortName),
		zap.Int("baud_rate", serialConfig.BaudRate),
		zap.Int("data_bits", serialConfig.DataBits),
		zap.String("parity", string(serialConfig.Parity)),
		zap.String("stop_bits", string(serialConfig.StopBits)),
		zap.String("flow_control", string(serialConfig.FlowControl)),
	)

	mode, err := buildSerialMode(serialConfig)
	if err != nil {
		return sc.openFailed(serialConfig.PortName, "FLOW_CONTROL_UNSUPPORTED", err)
	}

	port, err := sc.opener(serialConfig.PortName, mode)
	if err != nil {
		return sc.openFailed(serialConfig.PortName, serialErrorCode(err), err)
	}

	if err := port.SetReadTimeout(sc.options.ReadTimeout); err != nil {
		port.Close()
		return sc.openFailed(serialConfig.PortName, serialErrorCode(err), fmt.Errorf("failed to set read timeout: %w", err))
	}

	readCtx, cancel := context.WithCancel(context.Background())
	sc.config = serialConfig
	sc.port = port
	sc.state = model.StateOpen
	sc.cancel = cancel
	sc.stats.setConnected(true)

	sc.wg.Add(1)
	go sc.readLoop(readCtx, port)

	sc.logger.Info("Serial port opened successfully")
	sc.events.state(model.StateOpen, serialConfig.PortName, "Successfully opened "+serialConfig.PortName)
	return nil
}

// Send writes payload to the port
func (sc *SerialChannel) Send(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	portName := sc.config.PortName
	if sc.state != model.StateOpen || sc.port == nil {
		sc.stats.recordError()
		sc.events.fail(sc.events.errorEvent(model.SeverityNonFatal, model.OpSend, portName, "NOT_OPEN", "port not open"))
		return model.NewChannelError(model.ErrNotOpen, model.TransportSerial, portName, "NOT_OPEN", nil)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sc.writeMutex.Lock()
	n, err := sc.port.Write(data)
	sc.writeMutex.Unlock()

	if err == nil && n != len(data) {
		err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	if err != nil {
		code := serialErrorCode(err)
		sc.stats.recordError()
		sc.logger.Error("Serial write failed", zap.Error(err), zap.Int("bytes_to_write", len(data)))
		sc.events.fail(sc.events.errorEvent(model.SeverityNonFatal, model.OpSend, portName, code, err.Error()))
		return model.NewChannelError(model.ErrWrite, model.TransportSerial, portName, code, err)
	}

	sc.stats.recordWrite(n)
	sc.logger.Debug("Data written to serial port", zap.Int("bytes_written", n), zap.Binary("data", data))
	sc.events.transfer(model.DirectionSent, portName, data)
	return nil
}

// Close releases the port. Closing a channel that never opened emits nothing.
func (sc *SerialChannel) Close() error {
	return sc.terminate(true, nil)
}

// terminate runs once; wait is false when called from the reader goroutine
func (sc *SerialChannel) terminate(wait bool, cause *model.ErrorEvent) error {
	sc.mutex.Lock()
	if sc.closed {
		sc.mutex.Unlock()
		if wait {
			<-sc.terminated
		}
		return nil
	}

	sc.closed = true
	wasOpen := sc.state == model.StateOpen
	port := sc.port
	portName := sc.config.PortName
	if sc.cancel != nil {
		sc.cancel()
	}
	sc.port = nil
	sc.state = model.StateClosed
	sc.stats.setConnected(false)
	sc.mutex.Unlock()

	defer close(sc.terminated)

	var closeErr error
	if port != nil {
		closeErr = port.Close()
	}
	if wait {
		sc.wg.Wait()
	}

	if cause != nil {
		sc.events.fail(*cause)
	}

	if !wasOpen {
		sc.events.seal(nil)
		return nil
	}

	final := sc.events.stateEvent(model.StateClosed, portName, "closed "+portName)
	sc.events.seal(&final)

	if closeErr != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(closeErr))
		return fmt.Errorf("failed to close serial port: %w", closeErr)
	}

	sc.logger.Info("Serial port closed", zap.String("port", portName))
	return nil
}

func (sc *SerialChannel) readLoop(ctx context.Context, port serial.Port) {
	defer sc.wg.Done()

	buffer := make([]byte, sc.options.ReadBufferSize)
	for {
		n, err := port.Read(buffer)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			sc.stats.recordError()
			sc.logger.Error("Serial read failed, closing port", zap.Error(err))

			portName := sc.Target()
			cause := sc.events.errorEvent(model.SeverityFatal, model.OpReceive, portName, serialErrorCode(err), err.Error())
			sc.terminate(false, &cause)
			return
		}

		// n == 0 is a read timeout
		if n == 0 {
			continue
		}

		sc.stats.recordRead(n)
		sc.logger.Debug("Data read from serial port", zap.Int("bytes_read", n))
		sc.events.transfer(model.DirectionReceived, sc.Target(), buffer[:n])
	}
}

func (sc *SerialChannel) openFailed(portName, code string, err error) error {
	sc.stats.recordError()
	sc.logger.Error("Failed to open serial port", zap.Error(err), zap.String("port", portName))
	sc.events.fail(sc.events.errorEvent(model.SeverityFatal, model.OpOpen, portName, code, err.Error()))
	return model.NewChannelError(model.ErrOpen, model.TransportSerial, portName, code, err)
}

func asSerialConfig(cfg model.ChannelConfig) (model.SerialConfig, bool) {
	switch c := cfg.(type) {
	case model.SerialConfig:
		return c, true
	case *model.SerialConfig:
		if c != nil {
			return *c, true
		}
	}
	return model.SerialConfig{}, false
}

var (
	errHardwareFlowControl = errors.New("hardware (RTS/CTS) flow control is not supported by the serial driver")
	errSoftwareFlowControl = errors.New("software (XON/XOFF) flow control is not supported by the serial driver")
)

func buildSerialMode(cfg model.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.Parity {
	case model.ParityOdd:
		mode.Parity = serial.OddParity
	case model.ParityEven:
		mode.Parity = serial.EvenParity
	case model.ParityMark:
		mode.Parity = serial.MarkParity
	case model.ParitySpace:
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}

	switch cfg.StopBits {
	case model.StopBitsOneAndHalf:
		mode.StopBits = serial.OnePointFiveStopBits
	case model.StopBitsTwo:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch cfg.FlowControl {
	case model.FlowHardware:
		return nil, errHardwareFlowControl
	case model.FlowSoftware:
		return nil, errSoftwareFlowControl
	}

	return mode, nil
}

// serialErrorCode maps a driver error to its symbolic code
func serialErrorCode(err error) string {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortBusy:
			return "PORT_BUSY"
		case serial.PortNotFound:
			return "PORT_NOT_FOUND"
		case serial.InvalidSerialPort:
			return "INVALID_SERIAL_PORT"
		case serial.PermissionDenied:
			return "PERMISSION_DENIED"
		case serial.InvalidSpeed:
			return "INVALID_SPEED"
		case serial.InvalidDataBits:
			return "INVALID_DATA_BITS"
		case serial.InvalidParity:
			return "INVALID_PARITY"
		case serial.InvalidStopBits:
			return "INVALID_STOP_BITS"
		case serial.InvalidTimeoutValue:
			return "INVALID_TIMEOUT"
		case serial.ErrorEnumeratingPorts:
			return "ERROR_ENUMERATING_PORTS"
		case serial.PortClosed:
			return "PORT_CLOSED"
		case serial.FunctionNotImplemented:
			return "NOT_IMPLEMENTED"
		default:
			return fmt.Sprintf("PORT_ERROR_%d", portErr.Code())
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fmt.Sprintf("ERRNO_%d", int(errno))
	}
	return "IO_ERROR"
}
