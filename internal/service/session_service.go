// internal/service/session_service.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"comm-debugger/internal/config"
	"comm-debugger/internal/format"
	"comm-debugger/internal/model"
	"comm-debugger/internal/protocol"
	"comm-debugger/internal/stats"
	"comm-debugger/internal/utils"
)

// ChannelFactory builds a closed channel of the given kind
type ChannelFactory func(kind model.TransportKind, dispatcher *protocol.Dispatcher, options protocol.ChannelOptions, logger *zap.Logger) (protocol.ByteChannel, error)

// SessionOption customizes a SessionService
type SessionOption func(*SessionService)

// WithChannelFactory replaces the factory used by Open
func WithChannelFactory(factory ChannelFactory) SessionOption {
	return func(s *SessionService) {
		s.factory = factory
	}
}

// SessionService holds at most one channel per transport kind and routes
// open/close/send requests to it. Every channel reports to the shared dispatcher.
type SessionService struct {
	dispatcher *protocol.Dispatcher
	counter    *stats.TrafficCounter
	history    *History
	options    protocol.ChannelOptions
	defaults   protocol.ConfigDefaults
	factory    ChannelFactory
	subBuffer  int
	baseLogger *zap.Logger
	logger     *utils.ServiceLogger

	mutex    sync.Mutex
	channels map[model.TransportKind]*activeChannel
}

type activeChannel struct {
	channel  protocol.ByteChannel
	config   model.ChannelConfig
	openedAt time.Time
	logger   *utils.ChannelLogger
}

// NewSessionService creates a session and registers the traffic counter and
// history as dispatcher handlers.
func NewSessionService(
	dispatcher *protocol.Dispatcher,
	counter *stats.TrafficCounter,
	history *History,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...SessionOption,
) *SessionService {
	s := &SessionService{
		dispatcher: dispatcher,
		counter:    counter,
		history:    history,
		options:    cfg.ChannelOptions(),
		defaults:   cfg.ConfigDefaults(),
		factory:    protocol.CreateChannel,
		subBuffer:  cfg.Session.SubscriberBuffer,
		baseLogger: logger,
		logger:     utils.NewServiceLogger(logger, "session-service"),
		channels:   make(map[model.TransportKind]*activeChannel),
	}

	for _, opt := range opts {
		opt(s)
	}

	dispatcher.Handle(counter.Handle)
	dispatcher.Handle(history.Handle)

	return s
}

// Open closes any active channel of the same kind, then opens a fresh one.
// A channel that fails to open is discarded.
func (s *SessionService) Open(ctx context.Context, kind model.TransportKind, cfg model.ChannelConfig) (*ChannelInfo, error) {
	if cfg == nil || cfg.Kind() != kind {
		return nil, fmt.Errorf("%w: config does not match transport %s", model.ErrInvalidConfig, kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.channels[kind]; ok {
		delete(s.channels, kind)
		s.closeChannel(existing, "replaced")
	}

	channel, err := s.factory(kind, s.dispatcher, s.options, s.baseLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s channel: %w", kind, err)
	}

	channelLogger := utils.NewChannelLogger(s.baseLogger, kind, channel.ID())

	start := time.Now()
	err = channel.Open(ctx, cfg)
	channelLogger.LogLifecycle("open", channel.Target(), time.Since(start), err)
	if err != nil {
		// release the emitter of the failed instance
		channel.Close()
		return nil, err
	}

	ac := &activeChannel{
		channel:  channel,
		config:   cfg,
		openedAt: time.Now(),
		logger:   channelLogger,
	}
	s.channels[kind] = ac

	info := describe(kind, ac)
	return &info, nil
}

// OpenWithParams parses a decoded JSON object into a config and opens it
func (s *SessionService) OpenWithParams(ctx context.Context, kind model.TransportKind, params map[string]interface{}) (*ChannelInfo, error) {
	cfg, err := protocol.ParseConfig(kind, params, s.defaults)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, kind, cfg)
}

// Close closes the active channel of the kind. Closing an inactive kind is a no-op.
func (s *SessionService) Close(kind model.TransportKind) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ac, ok := s.channels[kind]
	if !ok {
		return nil
	}
	delete(s.channels, kind)

	return s.closeChannel(ac, "requested")
}

func (s *SessionService) closeChannel(ac *activeChannel, reason string) error {
	target := ac.channel.Target()

	start := time.Now()
	err := ac.channel.Close()
	ac.logger.LogLifecycle("close", target, time.Since(start), err)

	s.logger.Debug("Channel closed",
		zap.String("transport", string(ac.channel.Kind())),
		zap.String("reason", reason),
	)
	return err
}

// SendRequest describes one payload to send
type SendRequest struct {
	Kind          model.TransportKind
	Data          []byte
	Peer          string
	RemoteAddress string
	RemotePort    int
}

// Send routes a payload to the active channel of req.Kind. Without an active
// channel a NOT_OPEN error event is published and ErrNotOpen returned.
func (s *SessionService) Send(ctx context.Context, req SendRequest) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: nothing to send", model.ErrInvalidConfig)
	}

	ac := s.active(req.Kind)
	if ac == nil {
		return s.notOpen(req.Kind, req.Peer)
	}

	var err error
	peer := req.Peer

	switch ch := ac.channel.(type) {
	case *protocol.UDPChannel:
		switch {
		case req.RemoteAddress != "":
			peer = model.JoinHostPort(req.RemoteAddress, req.RemotePort)
			err = ch.SendToAddr(ctx, req.Data, req.RemoteAddress, req.RemotePort)
		case req.Peer != "":
			err = ch.SendTo(ctx, req.Data, req.Peer)
		default:
			err = ch.Send(ctx, req.Data)
		}
	case protocol.PeerSender:
		if req.Peer != "" {
			err = ch.SendTo(ctx, req.Data, req.Peer)
		} else {
			err = ac.channel.Send(ctx, req.Data)
		}
	default:
		if req.Peer != "" {
			return fmt.Errorf("%w: %s channels do not address peers", model.ErrInvalidConfig, req.Kind)
		}
		err = ac.channel.Send(ctx, req.Data)
	}

	if peer == "" {
		peer = ac.channel.Target()
	}
	ac.logger.LogSend(peer, len(req.Data), err)
	return err
}

func (s *SessionService) notOpen(kind model.TransportKind, peer string) error {
	ev := model.NewErrorEnvelope(model.ErrorEvent{
		TransportLabel: kind.Label(),
		Peer:           peer,
		Severity:       model.SeverityNonFatal,
		Op:             model.OpSend,
		Code:           "NOT_OPEN",
		Description:    fmt.Sprintf("%s not open", kind.Label()),
	})
	ev.Kind = kind

	if err := s.dispatcher.Publish(ev); err != nil {
		s.logger.Debug("Not-open event dropped", zap.Error(err))
	}

	return model.NewChannelError(model.ErrNotOpen, kind, peer, "NOT_OPEN", nil)
}

// OpenUDPReceiver (re)starts the receiver of the active UDP channel
func (s *SessionService) OpenUDPReceiver(ctx context.Context, address string, port int) error {
	ch, err := s.udpChannel()
	if err != nil {
		return err
	}
	return ch.OpenReceiver(ctx, address, port)
}

// CloseUDPReceiver stops the receiver of the active UDP channel; sending stays possible
func (s *SessionService) CloseUDPReceiver() error {
	ch, err := s.udpChannel()
	if err != nil {
		return err
	}
	return ch.CloseReceiver()
}

func (s *SessionService) udpChannel() (*protocol.UDPChannel, error) {
	ac := s.active(model.TransportUDP)
	if ac == nil {
		return nil, model.NewChannelError(model.ErrNotOpen, model.TransportUDP, "", "NOT_OPEN", nil)
	}

	ch, ok := ac.channel.(*protocol.UDPChannel)
	if !ok {
		return nil, fmt.Errorf("%w: udp channel does not manage a receiver", model.ErrInvalidConfig)
	}
	return ch, nil
}

// Peers lists the peers connected to the TCP server
func (s *SessionService) Peers() ([]string, error) {
	ac := s.active(model.TransportTCP)
	if ac == nil {
		return nil, model.NewChannelError(model.ErrNotOpen, model.TransportTCP, "", "NOT_OPEN", nil)
	}

	lister, ok := ac.channel.(protocol.PeerLister)
	if !ok {
		return []string{}, nil
	}
	return lister.Peers(), nil
}

// ChannelInfo describes an active channel
type ChannelInfo struct {
	ID       string                `json:"id"`
	Kind     model.TransportKind   `json:"kind"`
	State    model.ChannelState    `json:"state"`
	Target   string                `json:"target"`
	Config   model.ChannelConfig   `json:"config"`
	Peers    []string              `json:"peers,omitempty"`
	Stats    protocol.ChannelStats `json:"stats"`
	OpenedAt time.Time             `json:"opened_at"`
}

// Channels describes the active channels ordered by kind
func (s *SessionService) Channels() []ChannelInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	infos := make([]ChannelInfo, 0, len(s.channels))
	for kind, ac := range s.channels {
		infos = append(infos, describe(kind, ac))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}

// Channel describes the active channel of one kind
func (s *SessionService) Channel(kind model.TransportKind) (*ChannelInfo, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ac, ok := s.channels[kind]
	if !ok {
		return nil, false
	}
	info := describe(kind, ac)
	return &info, true
}

func describe(kind model.TransportKind, ac *activeChannel) ChannelInfo {
	info := ChannelInfo{
		ID:       ac.channel.ID(),
		Kind:     kind,
		State:    ac.channel.State(),
		Target:   ac.channel.Target(),
		Config:   ac.config,
		Stats:    ac.channel.Stats(),
		OpenedAt: ac.openedAt,
	}
	if lister, ok := ac.channel.(protocol.PeerLister); ok {
		info.Peers = lister.Peers()
	}
	return info
}

func (s *SessionService) active(kind model.TransportKind) *activeChannel {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.channels[kind]
}

// Stats returns the session byte totals
func (s *SessionService) Stats() model.TrafficTotals {
	return s.counter.Snapshot()
}

// ResetStats zeroes the session byte totals
func (s *SessionService) ResetStats() {
	s.counter.Reset()
	s.logger.Info("Traffic counters reset")
}

// History formats the retained events with the caller's display options
func (s *SessionService) History(opts format.Options) []string {
	return s.history.Lines(opts)
}

// ClearHistory drops the retained events
func (s *SessionService) ClearHistory() {
	s.history.Clear()
}

// Subscribe streams every event published after the call
func (s *SessionService) Subscribe() (<-chan model.Event, func()) {
	return s.dispatcher.Subscribe(s.subBuffer)
}

// Flush waits until every event published so far has been handled
func (s *SessionService) Flush() error {
	return s.dispatcher.Flush()
}

// Shutdown closes every active channel
func (s *SessionService) Shutdown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for kind, ac := range s.channels {
		delete(s.channels, kind)
		if err := s.closeChannel(ac, "shutdown"); err != nil {
			s.logger.Warn("Channel close failed during shutdown",
				zap.String("transport", string(kind)),
				zap.Error(err),
			)
		}
	}
}
