package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/datastream/internal/util"
)

// DefaultSTUNServers are used when no connectivity servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// defaultMid is the media id pion assigns to the application (data) section
// when it is the only one in the SDP.
const defaultMid = "0"

// NewAPI builds a pion API whose internal logs go to log. configure may
// adjust the setting engine (network, timeouts) before the API is created.
func NewAPI(log *util.Logger, configure ...func(*webrtc.SettingEngine)) *webrtc.API {
	se := webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(log),
	}
	for _, fn := range configure {
		fn(&se)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// Peer is the pion-backed Engine. Beyond relaying pion callbacks it drives
// the offer/answer steps itself: creating the first data channel produces an
// offer, and applying a remote offer produces an answer. Remote candidates
// that arrive before the remote description are held until it is applied.
type Peer struct {
	pc  *webrtc.PeerConnection
	log *util.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	gathering string

	onLocalDescription     func(sdp, typ string)
	onLocalCandidate       func(candidate, mid string)
	onDataChannel          func(DataChannel)
	onStateChange          func(state string)
	onGatheringStateChange func(state string)
}

// NewPeer creates a PeerConnection on api (NewAPI(log) when nil) using the
// given ICE servers.
func NewPeer(api *webrtc.API, iceServers []webrtc.ICEServer, log *util.Logger) (*Peer, error) {
	if api == nil {
		api = NewAPI(log)
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:        pc,
		log:       log.With("component", "engine"),
		gathering: webrtc.ICEGatheringStateNew.String(),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// End of gathering.
			p.reportGathering(webrtc.ICEGatheringStateComplete.String())
			return
		}
		p.reportGathering(pc.ICEGatheringState().String())

		init := c.ToJSON()
		mid := defaultMid
		if init.SDPMid != nil && *init.SDPMid != "" {
			mid = *init.SDPMid
		}

		p.mu.Lock()
		fn := p.onLocalCandidate
		p.mu.Unlock()
		if fn != nil {
			fn(init.Candidate, mid)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.mu.Lock()
		fn := p.onDataChannel
		p.mu.Unlock()
		if fn != nil {
			fn(NewChannel(dc))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.mu.Lock()
		fn := p.onStateChange
		p.mu.Unlock()
		if fn != nil {
			fn(state.String())
		}
	})

	return p, nil
}

// CreateDataChannel creates an ordered, reliable channel. The first channel
// on a fresh connection triggers the local offer.
func (p *Peer) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel %q: %w", label, err)
	}
	ch := NewChannel(dc)

	if p.pc.LocalDescription() == nil {
		offer, err := p.pc.CreateOffer(nil)
		if err != nil {
			return nil, fmt.Errorf("create offer: %w", err)
		}
		if err := p.pc.SetLocalDescription(offer); err != nil {
			return nil, fmt.Errorf("set local offer: %w", err)
		}
		p.emitDescription(offer)
	}

	return ch, nil
}

// SetRemoteDescription applies a remote offer or answer. An offer is
// answered immediately.
func (p *Peer) SetRemoteDescription(sdp, typ string) error {
	var t webrtc.SDPType
	switch typ {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("unsupported sdp type %q", typ)
	}

	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s: %w", typ, err)
	}
	p.flushPending()

	if t != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	p.emitDescription(answer)
	return nil
}

// AddRemoteCandidate applies a remote candidate, or queues it until the
// remote description is known.
func (p *Peer) AddRemoteCandidate(candidate, mid string) error {
	init := webrtc.ICECandidateInit{Candidate: candidate, SDPMid: &mid}

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add remote candidate: %w", err)
	}
	return nil
}

func (p *Peer) flushPending() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.remoteSet = true
	p.mu.Unlock()

	for _, init := range pending {
		if err := p.pc.AddICECandidate(init); err != nil {
			p.log.Warn("queued remote candidate rejected", "err", err)
		}
	}
}

func (p *Peer) emitDescription(desc webrtc.SessionDescription) {
	p.mu.Lock()
	fn := p.onLocalDescription
	p.mu.Unlock()
	if fn != nil {
		fn(desc.SDP, desc.Type.String())
	}
}

// reportGathering forwards gathering state transitions, skipping repeats.
func (p *Peer) reportGathering(state string) {
	p.mu.Lock()
	if state == p.gathering {
		p.mu.Unlock()
		return
	}
	p.gathering = state
	fn := p.onGatheringStateChange
	p.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

func (p *Peer) OnLocalDescription(fn func(sdp, typ string)) {
	p.mu.Lock()
	p.onLocalDescription = fn
	p.mu.Unlock()
}

func (p *Peer) OnLocalCandidate(fn func(candidate, mid string)) {
	p.mu.Lock()
	p.onLocalCandidate = fn
	p.mu.Unlock()
}

func (p *Peer) OnDataChannel(fn func(DataChannel)) {
	p.mu.Lock()
	p.onDataChannel = fn
	p.mu.Unlock()
}

func (p *Peer) OnStateChange(fn func(state string)) {
	p.mu.Lock()
	p.onStateChange = fn
	p.mu.Unlock()
}

func (p *Peer) OnGatheringStateChange(fn func(state string)) {
	p.mu.Lock()
	p.onGatheringStateChange = fn
	p.mu.Unlock()
}

// Close shuts down the PeerConnection and every channel on it.
func (p *Peer) Close() error {
	return p.pc.Close()
}

var _ Engine = (*Peer)(nil)
