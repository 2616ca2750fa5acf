// Package session pairs one local peer with one remote peer: it connects to
// the signaling server, relays negotiation messages between the signaling
// channel and the connection engine, and exposes the resulting data channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pion "github.com/pion/webrtc/v4"

	"github.com/1ureka/datastream/internal/config"
	"github.com/1ureka/datastream/internal/protocol"
	"github.com/1ureka/datastream/internal/signaling"
	"github.com/1ureka/datastream/internal/util"
	"github.com/1ureka/datastream/internal/webrtc"
)

var (
	// ErrAlreadyOpened is returned by a second call to Open.
	ErrAlreadyOpened = errors.New("session already opened")

	// ErrNotOpen is returned by SendWait without an open data channel.
	ErrNotOpen = errors.New("data channel not open")

	// ErrRefused is returned by SendWait when the channel rejects a payload.
	ErrRefused = errors.New("payload refused by data channel")
)

// Session drives a single peer pairing. Its data channel lifecycle is
// reported through two one-shot signals: ChannelOpen resolves the first time
// the channel becomes usable and ChannelClosed the first time it closes.
type Session struct {
	role     config.Role
	remoteID string
	label    string
	greeting string

	signaling *signaling.Channel
	engine    webrtc.Engine
	stats     *util.Stats
	log       *util.Logger

	open   *util.Signal
	closed *util.Signal

	opened atomic.Bool
	state  atomic.Int32

	mu        sync.RWMutex
	channel   webrtc.DataChannel
	onMessage func(protocol.Payload)
	onText    func(string)
	onBinary  func([]byte)
}

// Option customizes New.
type Option func(*options)

type options struct {
	socket signaling.Socket
	engine webrtc.Engine
	api    *pion.API
	log    *util.Logger
}

// WithSocket replaces the default WebSocket transport.
func WithSocket(s signaling.Socket) Option {
	return func(o *options) { o.socket = s }
}

// WithEngine replaces the default pion engine. WithAPI is ignored when an
// engine is given.
func WithEngine(e webrtc.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithAPI builds the default engine on api, e.g. one with a virtual network.
func WithAPI(api *pion.API) Option {
	return func(o *options) { o.api = api }
}

// WithLogger sets the session logger. The default is util.NewLogger().
func WithLogger(l *util.Logger) Option {
	return func(o *options) { o.log = l }
}

// New builds a Session and wires its signaling channel to its engine. No
// network activity happens until Open.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = util.NewLogger()
	}

	if cfg.Role != config.RoleInitiator && cfg.Role != config.RoleResponder {
		return nil, fmt.Errorf("invalid role %q", cfg.Role)
	}
	if cfg.RemoteID == "" {
		return nil, errors.New("missing remote id")
	}

	endpoint, err := cfg.SignalingEndpoint()
	if err != nil {
		return nil, err
	}

	log := o.log.With("role", string(cfg.Role), "remote", cfg.RemoteID)

	engine := o.engine
	if engine == nil {
		iceServers, err := config.ParseICEServers(cfg.ICEServers)
		if err != nil {
			return nil, err
		}
		peer, err := webrtc.NewPeer(o.api, iceServers, log)
		if err != nil {
			return nil, err
		}
		engine = peer
	}

	socket := o.socket
	if socket == nil {
		socket = signaling.NewWebSocket(nil)
	}

	label := cfg.Label
	if label == "" {
		label = config.DefaultLabel
	}

	s := &Session{
		role:     cfg.Role,
		remoteID: cfg.RemoteID,
		label:    label,
		greeting: cfg.Greeting,
		engine:   engine,
		stats:    &util.Stats{},
		log:      log,
		open:     util.NewSignal(),
		closed:   util.NewSignal(),
	}
	s.signaling = signaling.NewChannel(socket, endpoint, cfg.RemoteID, s.stats, o.log)
	s.bind()

	return s, nil
}

// bind connects engine output to the signaling channel and signaling input
// to the engine.
func (s *Session) bind() {
	s.engine.OnLocalDescription(func(sdp, typ string) {
		kind, err := signaling.ParseKind(typ)
		if err != nil || kind == signaling.KindCandidate {
			s.log.Error("engine produced unexpected description type", "type", typ)
			return
		}
		s.log.Debug("sending local description", "type", kind)
		s.signaling.Send(signaling.NewDescription(s.remoteID, kind, sdp))
	})

	s.engine.OnLocalCandidate(func(candidate, mid string) {
		s.signaling.Send(signaling.NewCandidate(s.remoteID, candidate, mid))
	})

	s.engine.OnDataChannel(func(dc webrtc.DataChannel) {
		s.log.Info("remote data channel announced", "label", dc.Label())
		s.adopt(dc)
	})

	s.engine.OnStateChange(func(state string) {
		s.log.Info("peer connection state", "state", state)
	})

	s.engine.OnGatheringStateChange(func(state string) {
		s.log.Debug("candidate gathering state", "state", state)
	})

	s.signaling.OnMessage(s.applyRemote)
}

func (s *Session) applyRemote(msg signaling.Message) {
	var err error
	if msg.IsCandidate() {
		err = s.engine.AddRemoteCandidate(msg.Candidate, msg.Mid)
	} else {
		s.setState(StateNegotiating)
		err = s.engine.SetRemoteDescription(msg.Description, msg.Kind.String())
	}
	if err != nil {
		s.log.Warn("failed to apply remote signal", "type", msg.Kind, "err", err)
	}
}

// Open connects to the signaling server and waits until the socket opens.
// The Initiator then creates the data channel, which starts negotiation;
// the Responder waits for the remote channel. Open does not wait for the
// data channel; use ChannelOpen for that.
func (s *Session) Open(ctx context.Context) error {
	if !s.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpened
	}

	s.setState(StateSignalingPending)
	s.signaling.Open()

	if err := s.signaling.Connected().Wait(ctx); err != nil {
		return fmt.Errorf("open signaling: %w", err)
	}
	s.setState(StateSignalingOpen)

	if s.role != config.RoleInitiator {
		s.log.Info("waiting for remote data channel")
		return nil
	}

	s.setState(StateNegotiating)
	dc, err := s.engine.CreateDataChannel(s.label)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.adopt(dc)
	return nil
}

// adopt makes dc the session's channel and arms its callbacks.
func (s *Session) adopt(dc webrtc.DataChannel) {
	s.mu.Lock()
	prev := s.channel
	s.channel = dc
	s.mu.Unlock()

	if prev != nil && prev != dc {
		s.log.Warn("replacing data channel", "old", prev.Label(), "new", dc.Label())
	}

	dc.OnOpen(func() {
		if !s.open.Resolve() {
			return
		}
		s.setState(StateChannelOpen)
		s.log.Info("data channel open", "label", dc.Label())

		if s.greeting != "" {
			greeting := protocol.Text(s.greeting)
			if dc.Send(greeting) {
				s.stats.AddSent(greeting.Len())
			} else {
				s.log.Warn("greeting not sent")
			}
		}
	})

	dc.OnClose(func() {
		if !s.closed.Resolve() {
			return
		}
		s.setState(StateClosed)
		s.log.Info("data channel closed", "label", dc.Label())
	})

	dc.OnMessage(s.dispatch)
}

// dispatch hands an inbound payload to the generic handler first, then to
// the text or binary handler.
func (s *Session) dispatch(p protocol.Payload) {
	s.stats.AddRecv(p.Len())

	s.mu.RLock()
	onMessage, onText, onBinary := s.onMessage, s.onText, s.onBinary
	s.mu.RUnlock()

	if onMessage != nil {
		onMessage(p)
	}
	if p.IsText {
		if onText != nil {
			onText(string(p.Data))
		}
		return
	}
	if onBinary != nil {
		onBinary(p.Data)
	}
}

// Send transmits p on the data channel. It returns false when there is no
// open channel or the channel refuses the payload.
func (s *Session) Send(p protocol.Payload) bool {
	s.mu.RLock()
	dc := s.channel
	s.mu.RUnlock()

	if dc == nil || !dc.IsOpen() {
		return false
	}
	if !dc.Send(p) {
		return false
	}
	s.stats.AddSent(p.Len())
	return true
}

// SendWait is Send for callers that prefer to wait out a full send buffer.
// Channels without a blocking mode fall back to Send.
func (s *Session) SendWait(ctx context.Context, p protocol.Payload) error {
	s.mu.RLock()
	dc := s.channel
	s.mu.RUnlock()

	if dc == nil || !dc.IsOpen() {
		return ErrNotOpen
	}

	if bs, ok := dc.(webrtc.BlockingSender); ok {
		if err := bs.SendWait(ctx, p); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	} else if !dc.Send(p) {
		return ErrRefused
	}

	s.stats.AddSent(p.Len())
	return nil
}

func (s *Session) SendText(text string) bool   { return s.Send(protocol.Text(text)) }
func (s *Session) SendBinary(data []byte) bool { return s.Send(protocol.Binary(data)) }

// ChannelOpen resolves once, when the data channel first opens.
func (s *Session) ChannelOpen() *util.Signal { return s.open }

// ChannelClosed resolves once, when the data channel first closes.
func (s *Session) ChannelClosed() *util.Signal { return s.closed }

// OnMessage receives every inbound payload, before OnText/OnBinary.
func (s *Session) OnMessage(fn func(protocol.Payload)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *Session) OnText(fn func(string)) {
	s.mu.Lock()
	s.onText = fn
	s.mu.Unlock()
}

func (s *Session) OnBinary(fn func([]byte)) {
	s.mu.Lock()
	s.onBinary = fn
	s.mu.Unlock()
}

func (s *Session) Role() config.Role       { return s.role }
func (s *Session) RemoteID() string        { return s.remoteID }
func (s *Session) Stats() *util.Stats      { return s.stats }
func (s *Session) State() State            { return State(s.state.Load()) }
func (s *Session) SignalingOpen() bool     { return s.signaling.IsOpen() }
func (s *Session) Connected() *util.Signal { return s.signaling.Connected() }

// setState moves the state forward; earlier states are ignored.
func (s *Session) setState(next State) {
	for {
		cur := s.state.Load()
		if State(cur) >= next {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			s.log.Debug("session state", "from", State(cur), "to", next)
			return
		}
	}
}

// Close tears down the data channel, the engine and the signaling socket.
func (s *Session) Close() error {
	s.mu.Lock()
	dc := s.channel
	s.channel = nil
	s.mu.Unlock()

	var errs []error
	if dc != nil {
		errs = append(errs, dc.Close())
	}
	errs = append(errs, s.engine.Close(), s.signaling.Close())
	s.setState(StateClosed)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
