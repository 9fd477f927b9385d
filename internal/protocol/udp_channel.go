// internal/protocol/udp_channel.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// UDPChannel implements ByteChannel for UDP. The receiver and the send path
// are independent: datagrams can be sent whether or not the receiver is bound.
type UDPChannel struct {
	id      string
	options ChannelOptions
	logger  *zap.Logger
	events  *emitter
	stats   statsRecorder

	mutex      sync.RWMutex
	writeMutex sync.Mutex
	config     model.UDPConfig
	state      model.ChannelState
	localAddr  string
	closed     bool

	receiver       *net.UDPConn
	receiverCancel context.CancelFunc
	receiverDone   chan struct{}

	// sender is an ephemeral socket used while no receiver is bound
	sender *net.UDPConn

	terminated chan struct{}
}

// NewUDPChannel creates a UDP channel with an unbound receiver
func NewUDPChannel(dispatcher *Dispatcher, options ChannelOptions, logger *zap.Logger) *UDPChannel {
	id := uuid.New().String()
	logger = logger.With(
		zap.String("protocol", "udp"),
		zap.String("channel_id", id),
	)

	return &UDPChannel{
		id:         id,
		options:    options.withDefaults(),
		logger:     logger,
		events:     newEmitter(id, model.TransportUDP, dispatcher, logger),
		state:      model.StateUnbound,
		terminated: make(chan struct{}),
	}
}

// ID returns the channel instance ID
func (uc *UDPChannel) ID() string { return uc.id }

// Kind returns the transport kind
func (uc *UDPChannel) Kind() model.TransportKind { return model.TransportUDP }

// State returns the receiver state
func (uc *UDPChannel) State() model.ChannelState {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.state
}

// Target returns the bound receiver address, or the default remote
func (uc *UDPChannel) Target() string {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.targetLocked()
}

func (uc *UDPChannel) targetLocked() string {
	if uc.localAddr != "" {
		return uc.localAddr
	}
	if uc.config.HasRemote() {
		return model.JoinHostPort(uc.config.RemoteAddress, uc.config.RemotePort)
	}
	return ""
}

// Stats returns channel statistics
func (uc *UDPChannel) Stats() ChannelStats {
	return uc.stats.snapshot()
}

// Open binds the receiver to the local endpoint and remembers the remote
// endpoint as the default send target.
func (uc *UDPChannel) Open(ctx context.Context, cfg model.ChannelConfig) error {
	udpConfig, ok := asUDPConfig(cfg)
	if !ok {
		return uc.receiverFailed("", "INVALID_CONFIG", fmt.Errorf("%w: expected udp config, got %T", model.ErrInvalidConfig, cfg))
	}
	if err := udpConfig.Validate(); err != nil {
		return uc.receiverFailed(model.JoinHostPort(udpConfig.LocalAddress, udpConfig.LocalPort), "INVALID_CONFIG", err)
	}

	uc.mutex.Lock()
	if uc.closed {
		uc.mutex.Unlock()
		return model.NewChannelError(model.ErrChannelClosed, model.TransportUDP, udpConfig.LocalAddress, "CLOSED", nil)
	}
	uc.config = udpConfig
	uc.mutex.Unlock()

	return uc.OpenReceiver(ctx, udpConfig.LocalAddress, udpConfig.LocalPort)
}

// OpenReceiver binds the receiving socket. An already bound receiver is kept.
func (uc *UDPChannel) OpenReceiver(ctx context.Context, address string, port int) error {
	endpoint := model.JoinHostPort(address, port)

	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.closed {
		return model.NewChannelError(model.ErrChannelClosed, model.TransportUDP, endpoint, "CLOSED", nil)
	}
	if uc.state == model.StateBound {
		return nil
	}

	uc.logger.Info("Starting UDP receiver", zap.String("address", endpoint))

	lc := net.ListenConfig{}
	packetConn, err := lc.ListenPacket(ctx, "udp", endpoint)
	if err != nil {
		return uc.receiverFailed(endpoint, netErrorCode(err), err)
	}
	conn, ok := packetConn.(*net.UDPConn)
	if !ok {
		packetConn.Close()
		return uc.receiverFailed(endpoint, "NETWORK_ERROR", fmt.Errorf("unexpected packet conn %T", packetConn))
	}

	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	uc.receiver = conn
	uc.receiverCancel = cancel
	uc.receiverDone = done
	uc.localAddr = conn.LocalAddr().String()
	uc.state = model.StateBound
	uc.stats.setConnected(true)
	uc.events.state(model.StateBound, uc.localAddr, "started receiver at "+uc.localAddr)

	go uc.readLoop(readCtx, conn, done)

	uc.logger.Info("UDP receiver started", zap.String("address", uc.localAddr))
	return nil
}

// CloseReceiver unbinds the receiver; the channel can still send and the
// receiver can be opened again.
func (uc *UDPChannel) CloseReceiver() error {
	// sends write through the receiver socket; wait for an in-flight one
	uc.writeMutex.Lock()
	uc.mutex.Lock()
	if uc.closed || uc.state != model.StateBound {
		uc.mutex.Unlock()
		uc.writeMutex.Unlock()
		return nil
	}

	conn, cancel, done := uc.receiver, uc.receiverCancel, uc.receiverDone
	addr := uc.localAddr
	uc.unbindLocked()
	uc.mutex.Unlock()

	cancel()
	err := conn.Close()
	uc.writeMutex.Unlock()
	<-done

	uc.events.state(model.StateUnbound, addr, "closed receiver")
	uc.logger.Info("UDP receiver closed", zap.String("address", addr))

	if err != nil {
		return fmt.Errorf("failed to close UDP receiver: %w", err)
	}
	return nil
}

func (uc *UDPChannel) unbindLocked() {
	uc.receiver = nil
	uc.receiverCancel = nil
	uc.receiverDone = nil
	uc.localAddr = ""
	uc.state = model.StateUnbound
	uc.stats.setConnected(false)
}

func (uc *UDPChannel) readLoop(ctx context.Context, conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	buffer := make([]byte, uc.options.MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			code := netErrorCode(err)
			receiveErr := model.NewChannelError(model.ErrReceive, model.TransportUDP, conn.LocalAddr().String(), code, err)
			uc.stats.recordError()

			if errors.Is(err, net.ErrClosed) {
				uc.logger.Error("UDP receiver socket closed unexpectedly", zap.Error(receiveErr))

				uc.mutex.Lock()
				if uc.receiver != conn {
					uc.mutex.Unlock()
					return
				}
				local := uc.localAddr
				uc.unbindLocked()
				uc.events.fail(uc.events.errorEvent(model.SeverityFatal, model.OpReceive, local, code, "receive failed: "+err.Error()))
				uc.events.state(model.StateUnbound, local, "")
				uc.mutex.Unlock()
				return
			}

			uc.logger.Warn("UDP receive failed", zap.Error(receiveErr))
			uc.events.fail(uc.events.errorEvent(model.SeverityNonFatal, model.OpReceive, uc.Target(), code, "receive failed: "+err.Error()))
			continue
		}

		peer := addr.String()
		uc.stats.recordRead(n)
		uc.logger.Debug("UDP datagram received", zap.String("peer", peer), zap.Int("bytes", n))
		uc.events.transfer(model.DirectionReceived, peer, buffer[:n])
	}
}

// Send transmits to the remote endpoint given at Open
func (uc *UDPChannel) Send(ctx context.Context, data []byte) error {
	uc.mutex.RLock()
	cfg := uc.config
	uc.mutex.RUnlock()

	if !cfg.HasRemote() {
		uc.stats.recordError()
		uc.events.fail(uc.events.errorEvent(model.SeverityNonFatal, model.OpSend, "", "NO_REMOTE", "failed to send: no remote address configured"))
		return model.NewChannelError(model.ErrNotOpen, model.TransportUDP, "", "NO_REMOTE", nil)
	}
	return uc.SendToAddr(ctx, data, cfg.RemoteAddress, cfg.RemotePort)
}

// SendTo transmits to a peer given as host:port
func (uc *UDPChannel) SendTo(ctx context.Context, data []byte, peer string) error {
	host, portText, err := net.SplitHostPort(peer)
	if err != nil {
		return uc.sendFailed(peer, "INVALID_ADDRESS", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return uc.sendFailed(peer, "INVALID_ADDRESS", fmt.Errorf("invalid port %q", portText))
	}
	return uc.SendToAddr(ctx, data, host, port)
}

// SendToAddr transmits one datagram to address:port
func (uc *UDPChannel) SendToAddr(ctx context.Context, data []byte, address string, port int) error {
	endpoint := model.JoinHostPort(address, port)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	raddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return uc.sendFailed(endpoint, netErrorCode(err), err)
	}

	uc.writeMutex.Lock()
	conn, err := uc.sendConn()
	if err != nil {
		uc.writeMutex.Unlock()
		return uc.sendFailed(endpoint, netErrorCode(err), err)
	}

	applyWriteDeadline(ctx, conn)
	n, err := conn.WriteToUDP(data, raddr)
	uc.writeMutex.Unlock()

	if err == nil && n != len(data) {
		err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	if err != nil {
		return uc.sendFailed(endpoint, netErrorCode(err), err)
	}

	peer := raddr.String()
	uc.stats.recordWrite(n)
	uc.logger.Debug("UDP datagram sent", zap.String("peer", peer), zap.Binary("data", data))
	uc.events.transfer(model.DirectionSent, peer, data)
	uc.events.state(uc.State(), peer, "send succeeded")
	return nil
}

// sendConn returns the bound receiver socket, or a lazily created ephemeral one
func (uc *UDPChannel) sendConn() (*net.UDPConn, error) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.closed {
		return nil, fmt.Errorf("%w: channel closed", net.ErrClosed)
	}
	if uc.receiver != nil {
		return uc.receiver, nil
	}
	if uc.sender == nil {
		conn, err := net.ListenUDP("udp", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create sender socket: %w", err)
		}
		uc.sender = conn
	}
	return uc.sender, nil
}

func (uc *UDPChannel) sendFailed(endpoint, code string, err error) error {
	uc.stats.recordError()
	uc.logger.Error("UDP send failed", zap.Error(err), zap.String("peer", endpoint))
	uc.events.fail(uc.events.errorEvent(model.SeverityNonFatal, model.OpSend, endpoint, code, "failed to send: "+err.Error()))
	return model.NewChannelError(model.ErrSend, model.TransportUDP, endpoint, code, err)
}

func (uc *UDPChannel) receiverFailed(endpoint, code string, err error) error {
	uc.stats.recordError()
	uc.logger.Error("Failed to start UDP receiver", zap.Error(err), zap.String("address", endpoint))
	uc.events.fail(uc.events.errorEvent(model.SeverityFatal, model.OpReceive, endpoint, code, "cannot start receiver: "+err.Error()))

	// a socket that cannot be bound fails both the open and the receive path
	cause := err
	if !errors.Is(err, model.ErrInvalidConfig) {
		cause = fmt.Errorf("%w: %w", model.ErrReceive, err)
	}
	return model.NewChannelError(model.ErrOpen, model.TransportUDP, endpoint, code, cause)
}

// Close releases both sockets. Nothing is emitted if neither was ever used.
func (uc *UDPChannel) Close() error {
	uc.mutex.Lock()
	if uc.closed {
		uc.mutex.Unlock()
		<-uc.terminated
		return nil
	}

	uc.closed = true
	receiver, cancel, done := uc.receiver, uc.receiverCancel, uc.receiverDone
	sender := uc.sender
	target := uc.targetLocked()
	wasActive := receiver != nil || sender != nil
	uc.sender = nil
	uc.unbindLocked()
	uc.mutex.Unlock()

	defer close(uc.terminated)

	var closeErr error
	if receiver != nil {
		cancel()
		closeErr = receiver.Close()
		<-done
	}
	if sender != nil {
		if err := sender.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}

	if !wasActive {
		uc.events.seal(nil)
		return nil
	}

	final := uc.events.stateEvent(model.StateUnbound, target, "closed "+target)
	uc.events.seal(&final)

	if closeErr != nil {
		uc.logger.Error("Failed to close UDP channel", zap.Error(closeErr))
		return fmt.Errorf("failed to close UDP channel: %w", closeErr)
	}

	uc.logger.Info("UDP channel closed")
	return nil
}

func asUDPConfig(cfg model.ChannelConfig) (model.UDPConfig, bool) {
	switch c := cfg.(type) {
	case model.UDPConfig:
		return c, true
	case *model.UDPConfig:
		if c != nil {
			return *c, true
		}
	}
	return model.UDPConfig{}, false
}
