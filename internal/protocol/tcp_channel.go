// internal/protocol/tcp_channel.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// TCPChannel implements ByteChannel for a TCP client or server
type TCPChannel struct {
	id       string
	options  ChannelOptions
	resolver *net.Resolver
	logger   *zap.Logger
	events   *emitter
	stats    statsRecorder

	mutex     sync.RWMutex
	config    model.TCPConfig
	state     model.ChannelState
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
	localAddr string

	// client role
	conn       net.Conn
	writeMutex sync.Mutex

	// server role
	listener net.Listener
	peers    map[string]*peerConn

	terminated chan struct{}
}

type peerConn struct {
	conn       net.Conn
	writeMutex sync.Mutex
}

// NewTCPChannel creates an unconnected TCP channel
func NewTCPChannel(dispatcher *Dispatcher, options ChannelOptions, logger *zap.Logger) *TCPChannel {
	id := uuid.New().String()
	logger = logger.With(
		zap.String("protocol", "tcp"),
		zap.String("channel_id", id),
	)

	return &TCPChannel{
		id:         id,
		options:    options.withDefaults(),
		resolver:   net.DefaultResolver,
		logger:     logger,
		events:     newEmitter(id, model.TransportTCP, dispatcher, logger),
		state:      model.StateUnconnected,
		peers:      make(map[string]*peerConn),
		terminated: make(chan struct{}),
	}
}

// ID returns the channel instance ID
func (tc *TCPChannel) ID() string { return tc.id }

// Kind returns the transport kind
func (tc *TCPChannel) Kind() model.TransportKind { return model.TransportTCP }

// State returns the current state
func (tc *TCPChannel) State() model.ChannelState {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.state
}

// Role returns the role of the last Open call
func (tc *TCPChannel) Role() model.TCPRole {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.config.Role
}

// Target returns the remote endpoint (client) or the bound address (server)
func (tc *TCPChannel) Target() string {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.targetLocked()
}

func (tc *TCPChannel) targetLocked() string {
	if tc.config.Role == model.TCPRoleServer && tc.localAddr != "" {
		return tc.localAddr
	}
	if tc.config.Role == "" {
		return ""
	}
	return tc.config.Endpoint()
}

// Stats returns channel statistics
func (tc *TCPChannel) Stats() ChannelStats {
	return tc.stats.snapshot()
}

// Peers returns the connected peers of a server, sorted
func (tc *TCPChannel) Peers() []string {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	peers := make([]string, 0, len(tc.peers))
	for peer := range tc.peers {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

// Open starts a connect attempt (client) or listens (server). A client Open
// returns before the connection is established; progress is reported as
// state events.
func (tc *TCPChannel) Open(ctx context.Context, cfg model.ChannelConfig) error {
	tcpConfig, ok := asTCPConfig(cfg)
	if !ok {
		return tc.openFailed("", "INVALID_CONFIG", "", fmt.Errorf("%w: expected tcp config, got %T", model.ErrInvalidConfig, cfg))
	}
	if err := tcpConfig.Validate(); err != nil {
		return tc.openFailed(tcpConfig.Endpoint(), "INVALID_CONFIG", "", err)
	}

	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.closed {
		return model.NewChannelError(model.ErrChannelClosed, model.TransportTCP, tcpConfig.Endpoint(), "CLOSED", nil)
	}
	if tc.state != model.StateUnconnected {
		return nil
	}

	tc.config = tcpConfig
	tc.localAddr = ""

	if tcpConfig.Role == model.TCPRoleServer {
		return tc.listenLocked(ctx)
	}

	tc.logger.Info("Connecting to TCP host", zap.String("address", tcpConfig.Endpoint()))

	connectCtx, cancel := context.WithCancel(context.Background())
	tc.ctx = connectCtx
	tc.cancel = cancel
	if net.ParseIP(tcpConfig.Address) == nil {
		tc.state = model.StateHostLookup
	} else {
		tc.state = model.StateConnecting
	}

	tc.wg.Add(1)
	go tc.connect(connectCtx, tcpConfig)
	return nil
}

func (tc *TCPChannel) connect(ctx context.Context, cfg model.TCPConfig) {
	defer tc.wg.Done()

	endpoint := cfg.Endpoint()
	host := cfg.Address

	if net.ParseIP(host) == nil {
		tc.transition(ctx, model.StateHostLookup, endpoint, "looking up host "+host)

		addrs, err := tc.resolver.LookupHost(ctx, host)
		if err == nil && len(addrs) == 0 {
			err = fmt.Errorf("no addresses for host %s", host)
		}
		if err != nil {
			tc.connectFailed(ctx, endpoint, err)
			return
		}
		host = addrs[0]
	}

	tc.transition(ctx, model.StateConnecting, endpoint, "connecting to "+endpoint)

	dialer := &net.Dialer{Timeout: tc.options.DialTimeout}
	if tc.options.KeepAlive {
		dialer.KeepAlive = tc.options.KeepAlivePeriod
	} else {
		dialer.KeepAlive = -1
	}

	conn, err := dialer.DialContext(ctx, "tcp", model.JoinHostPort(host, cfg.Port))
	if err != nil {
		tc.connectFailed(ctx, endpoint, err)
		return
	}

	tc.mutex.Lock()
	if tc.closed || ctx.Err() != nil {
		tc.mutex.Unlock()
		conn.Close()
		return
	}

	peer := conn.RemoteAddr().String()
	tc.conn = conn
	tc.state = model.StateConnected
	tc.stats.setConnected(true)
	tc.events.state(model.StateConnected, peer, "connected to "+endpoint)
	tc.wg.Add(1)
	tc.mutex.Unlock()

	tc.logger.Info("TCP connection established", zap.String("remote", peer))
	go tc.clientReadLoop(ctx, conn, peer)
}

// transition records a connect step unless Close already cancelled it
func (tc *TCPChannel) transition(ctx context.Context, state model.ChannelState, peer, message string) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.closed || ctx.Err() != nil {
		return
	}
	tc.state = state
	tc.events.state(state, peer, message)
}

func (tc *TCPChannel) connectFailed(ctx context.Context, endpoint string, err error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.closed || ctx.Err() != nil {
		return
	}

	tc.logger.Error("TCP connect failed", zap.Error(err), zap.String("address", endpoint))
	tc.stats.recordError()
	tc.cancel()
	tc.state = model.StateUnconnected
	tc.events.fail(tc.events.errorEvent(model.SeverityFatal, model.OpOpen, endpoint, netErrorCode(err), "client error: "+err.Error()))
	tc.events.state(model.StateUnconnected, endpoint, "")
}

func (tc *TCPChannel) clientReadLoop(ctx context.Context, conn net.Conn, peer string) {
	defer tc.wg.Done()

	buffer := make([]byte, tc.options.ReadBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			tc.stats.recordRead(n)
			tc.events.transfer(model.DirectionReceived, peer, buffer[:n])
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		tc.connectionLost(ctx, conn, peer, err)
		return
	}
}

// connectionLost drops the client connection after a remote close or reset.
// The channel returns to UNCONNECTED and may be opened again.
func (tc *TCPChannel) connectionLost(ctx context.Context, conn net.Conn, peer string, err error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.closed || ctx.Err() != nil || tc.conn != conn {
		return
	}

	description := "client error: " + err.Error()
	if errors.Is(err, io.EOF) {
		description = "client error: the remote host closed the connection"
	}

	tc.logger.Warn("TCP connection lost", zap.Error(err), zap.String("remote", peer))
	tc.stats.recordError()
	tc.stats.setConnected(false)
	tc.cancel()
	conn.Close()
	tc.conn = nil
	tc.state = model.StateUnconnected
	tc.events.fail(tc.events.errorEvent(model.SeverityFatal, model.OpReceive, peer, netErrorCode(err), description))
	tc.events.state(model.StateUnconnected, peer, "")
}

func (tc *TCPChannel) listenLocked(ctx context.Context) error {
	endpoint := tc.config.Endpoint()
	tc.logger.Info("Starting TCP server", zap.String("address", endpoint))

	lc := net.ListenConfig{}
	if tc.options.KeepAlive {
		lc.KeepAlive = tc.options.KeepAlivePeriod
	} else {
		lc.KeepAlive = -1
	}

	listener, err := lc.Listen(ctx, "tcp", endpoint)
	if err != nil {
		return tc.openFailed(endpoint, netErrorCode(err), "server error: ", err)
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	tc.ctx = acceptCtx
	tc.cancel = cancel
	tc.listener = listener
	tc.localAddr = listener.Addr().String()

	tc.state = model.StateBound
	tc.events.state(model.StateBound, tc.localAddr, "bound to "+tc.localAddr)
	tc.state = model.StateListening
	tc.stats.setConnected(true)
	tc.events.state(model.StateListening, tc.localAddr, "listening on "+tc.localAddr)

	tc.wg.Add(1)
	go tc.acceptLoop(acceptCtx, listener)

	tc.logger.Info("TCP server listening", zap.String("address", tc.localAddr))
	return nil
}

func (tc *TCPChannel) acceptLoop(ctx context.Context, listener net.Listener) {
	defer tc.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			tc.stats.recordError()
			tc.logger.Warn("TCP accept failed", zap.Error(err))
			tc.events.fail(tc.events.errorEvent(model.SeverityNonFatal, model.OpAccept, tc.Target(), netErrorCode(err), "server error: "+err.Error()))

			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		peer := conn.RemoteAddr().String()
		pc := &peerConn{conn: conn}

		tc.mutex.Lock()
		if tc.closed || ctx.Err() != nil {
			tc.mutex.Unlock()
			conn.Close()
			return
		}
		tc.peers[peer] = pc
		tc.events.state(model.StateConnected, peer, "new connection from "+peer)
		tc.wg.Add(1)
		tc.mutex.Unlock()

		tc.logger.Info("TCP peer connected", zap.String("peer", peer))
		go tc.peerReadLoop(ctx, pc, peer)
	}
}

func (tc *TCPChannel) peerReadLoop(ctx context.Context, pc *peerConn, peer string) {
	defer tc.wg.Done()

	buffer := make([]byte, tc.options.ReadBufferSize)
	for {
		n, err := pc.conn.Read(buffer)
		if n > 0 {
			tc.stats.recordRead(n)
			tc.events.transfer(model.DirectionReceived, peer, buffer[:n])
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		tc.mutex.Lock()
		if tc.closed {
			tc.mutex.Unlock()
			return
		}
		if tc.peers[peer] == pc {
			delete(tc.peers, peer)
		}
		pc.conn.Close()
		if !errors.Is(err, io.EOF) {
			tc.stats.recordError()
			tc.events.fail(tc.events.errorEvent(model.SeverityNonFatal, model.OpReceive, peer, netErrorCode(err), "server error: "+err.Error()))
		}
		tc.events.state(model.StateUnconnected, peer, "peer "+peer+" disconnected")
		tc.mutex.Unlock()

		tc.logger.Info("TCP peer disconnected", zap.String("peer", peer), zap.Error(err))
		return
	}
}

// Send writes to the server (client role) or to every peer (server role)
func (tc *TCPChannel) Send(ctx context.Context, data []byte) error {
	if tc.Role() == model.TCPRoleServer {
		return tc.SendTo(ctx, data, model.AllPeers)
	}

	tc.mutex.RLock()
	conn := tc.conn
	connected := tc.state == model.StateConnected && conn != nil
	target := tc.targetLocked()
	tc.mutex.RUnlock()

	if !connected {
		return tc.notOpen(target)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tc.writeMutex.Lock()
	err := tc.write(ctx, conn, data)
	tc.writeMutex.Unlock()

	peer := conn.RemoteAddr().String()
	if err != nil {
		return tc.writeFailed(peer, err)
	}

	tc.stats.recordWrite(len(data))
	tc.events.transfer(model.DirectionSent, peer, data)
	return nil
}

// SendTo writes to one connected peer, or to all of them for model.AllPeers
func (tc *TCPChannel) SendTo(ctx context.Context, data []byte, peer string) error {
	tc.mutex.RLock()
	role := tc.config.Role
	listening := tc.state == model.StateListening
	target := tc.targetLocked()

	var names []string
	var conns []*peerConn
	if listening {
		if peer == model.AllPeers {
			for name := range tc.peers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				conns = append(conns, tc.peers[name])
			}
		} else if pc, ok := tc.peers[peer]; ok {
			names = []string{peer}
			conns = []*peerConn{pc}
		}
	}
	tc.mutex.RUnlock()

	if role != model.TCPRoleServer {
		if peer == "" || peer == model.AllPeers || peer == target {
			return tc.Send(ctx, data)
		}
		return tc.unknownPeer(peer)
	}
	if !listening {
		return tc.notOpen(target)
	}
	if len(conns) == 0 {
		return tc.unknownPeer(peer)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var firstErr error
	for i, pc := range conns {
		if err := tc.sendToPeer(ctx, names[i], pc, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sendToPeer writes to one peer taken from a snapshot. A peer that went away
// after the snapshot is reported as unknown rather than as a write failure.
func (tc *TCPChannel) sendToPeer(ctx context.Context, name string, pc *peerConn, data []byte) error {
	pc.writeMutex.Lock()
	err := tc.write(ctx, pc.conn, data)
	pc.writeMutex.Unlock()

	if err != nil {
		if errors.Is(err, net.ErrClosed) || !tc.tracks(name, pc) {
			return tc.unknownPeer(name)
		}
		return tc.writeFailed(name, err)
	}

	tc.stats.recordWrite(len(data))
	tc.events.transfer(model.DirectionSent, name, data)
	return nil
}

func (tc *TCPChannel) tracks(name string, pc *peerConn) bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.peers[name] == pc
}

func (tc *TCPChannel) write(ctx context.Context, conn net.Conn, data []byte) error {
	applyWriteDeadline(ctx, conn)
	n, err := conn.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	return err
}

func (tc *TCPChannel) writeFailed(peer string, err error) error {
	code := netErrorCode(err)
	tc.stats.recordError()
	tc.logger.Error("TCP write failed", zap.Error(err), zap.String("peer", peer))
	tc.events.fail(tc.events.errorEvent(model.SeverityNonFatal, model.OpSend, peer, code, err.Error()))
	return model.NewChannelError(model.ErrWrite, model.TransportTCP, peer, code, err)
}

func (tc *TCPChannel) notOpen(target string) error {
	tc.stats.recordError()
	tc.events.fail(tc.events.errorEvent(model.SeverityNonFatal, model.OpSend, target, "NOT_OPEN", "socket not connected"))
	return model.NewChannelError(model.ErrNotOpen, model.TransportTCP, target, "NOT_OPEN", nil)
}

func (tc *TCPChannel) unknownPeer(peer string) error {
	tc.stats.recordError()
	tc.events.fail(tc.events.errorEvent(model.SeverityNonFatal, model.OpSend, peer, "UNKNOWN_PEER", "no connected peer "+peer))
	return model.NewChannelError(model.ErrUnknownPeer, model.TransportTCP, peer, "UNKNOWN_PEER", nil)
}

func (tc *TCPChannel) openFailed(target, code, prefix string, err error) error {
	tc.stats.recordError()
	tc.logger.Error("Failed to open TCP channel", zap.Error(err), zap.String("address", target))
	tc.events.fail(tc.events.errorEvent(model.SeverityFatal, model.OpOpen, target, code, prefix+err.Error()))
	return model.NewChannelError(model.ErrOpen, model.TransportTCP, target, code, err)
}

// Close disconnects the client or stops the server and drops every peer.
// It is safe while a connect attempt is still in flight.
func (tc *TCPChannel) Close() error {
	tc.mutex.Lock()
	if tc.closed {
		tc.mutex.Unlock()
		<-tc.terminated
		return nil
	}

	tc.closed = true
	wasActive := tc.state.IsActive()
	role := tc.config.Role
	target := tc.targetLocked()
	if tc.cancel != nil {
		tc.cancel()
	}

	conn := tc.conn
	listener := tc.listener
	peers := tc.peers
	tc.conn = nil
	tc.listener = nil
	tc.peers = make(map[string]*peerConn)
	tc.state = model.StateUnconnected
	tc.stats.setConnected(false)
	tc.mutex.Unlock()

	defer close(tc.terminated)

	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}
	if listener != nil {
		if err := listener.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	for _, pc := range peers {
		pc.conn.Close()
	}

	tc.wg.Wait()

	if !wasActive {
		tc.events.seal(nil)
		return nil
	}

	if role == model.TCPRoleClient {
		tc.events.state(model.StateClosing, target, "")
	}
	final := tc.events.stateEvent(model.StateUnconnected, target, "closed "+target)
	tc.events.seal(&final)

	if closeErr != nil {
		tc.logger.Error("Failed to close TCP channel", zap.Error(closeErr))
		return fmt.Errorf("failed to close TCP channel: %w", closeErr)
	}

	tc.logger.Info("TCP channel closed", zap.String("role", string(role)))
	return nil
}

func asTCPConfig(cfg model.ChannelConfig) (model.TCPConfig, bool) {
	switch c := cfg.(type) {
	case model.TCPConfig:
		return c, true
	case *model.TCPConfig:
		if c != nil {
			return *c, true
		}
	}
	return model.TCPConfig{}, false
}
