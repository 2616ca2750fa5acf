package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/1ureka/datastream/internal/protocol"
	"github.com/1ureka/datastream/internal/signaling"
	"github.com/1ureka/datastream/internal/webrtc"
)

// Compile-time interface checks.
var (
	_ signaling.Socket   = (*fakeSocket)(nil)
	_ webrtc.Engine      = (*fakeEngine)(nil)
	_ webrtc.DataChannel = (*fakeChannel)(nil)
)

// fakeSocket settles its connection inside Open according to openErr:
// nil opens, non-nil fails, and hold leaves it pending.
type fakeSocket struct {
	openErr error
	hold    bool

	mu        sync.Mutex
	url       string
	open      bool
	closed    bool
	sent      [][]byte
	onOpen    func()
	onClosed  func()
	onError   func(error)
	onMessage func(protocol.Payload)
}

func (f *fakeSocket) Open(url string) {
	f.mu.Lock()
	f.url = url
	f.mu.Unlock()

	switch {
	case f.hold:
	case f.openErr != nil:
		f.onError(f.openErr)
	default:
		f.mu.Lock()
		f.open = true
		f.mu.Unlock()
		f.onOpen()
	}
}

func (f *fakeSocket) Send(p protocol.Payload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return false
	}
	f.sent = append(f.sent, p.Data)
	return true
}

func (f *fakeSocket) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSocket) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.open, f.closed = false, true
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) OnOpen(fn func())                    { f.onOpen = fn }
func (f *fakeSocket) OnClosed(fn func())                  { f.onClosed = fn }
func (f *fakeSocket) OnError(fn func(error))              { f.onError = fn }
func (f *fakeSocket) OnMessage(fn func(protocol.Payload)) { f.onMessage = fn }

// deliver plays an inbound signaling frame.
func (f *fakeSocket) deliver(msg signaling.Message) {
	f.onMessage(protocol.Payload{Data: msg.Encode(), IsText: true})
}

func (f *fakeSocket) messages(t *testing.T) []signaling.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]signaling.Message, 0, len(f.sent))
	for _, data := range f.sent {
		msg, err := signaling.Decode(data)
		if err != nil {
			t.Fatalf("sent frame does not decode: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

type remoteDescription struct {
	sdp, typ string
}

// fakeEngine mimics the negotiation side effects of the pion engine:
// the first channel emits an offer and a remote offer emits an answer.
type fakeEngine struct {
	createErr error
	closeErr  error

	mu          sync.Mutex
	created     []*fakeChannel
	remoteDescs []remoteDescription
	candidates  []string
	closed      bool

	onLocalDescription     func(sdp, typ string)
	onLocalCandidate       func(candidate, mid string)
	onDataChannel          func(webrtc.DataChannel)
	onStateChange          func(string)
	onGatheringStateChange func(string)
}

func (e *fakeEngine) CreateDataChannel(label string) (webrtc.DataChannel, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	dc := &fakeChannel{label: label}
	e.mu.Lock()
	first := len(e.created) == 0
	e.created = append(e.created, dc)
	e.mu.Unlock()
	if first {
		e.onLocalDescription("offer-sdp", "offer")
	}
	return dc, nil
}

func (e *fakeEngine) SetRemoteDescription(sdp, typ string) error {
	if typ != "offer" && typ != "answer" {
		return errors.New("bad type")
	}
	e.mu.Lock()
	e.remoteDescs = append(e.remoteDescs, remoteDescription{sdp, typ})
	e.mu.Unlock()
	if typ == "offer" {
		e.onLocalDescription("answer-sdp", "answer")
	}
	return nil
}

func (e *fakeEngine) AddRemoteCandidate(candidate, mid string) error {
	e.mu.Lock()
	e.candidates = append(e.candidates, candidate+"@"+mid)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) OnLocalDescription(fn func(sdp, typ string))     { e.onLocalDescription = fn }
func (e *fakeEngine) OnLocalCandidate(fn func(candidate, mid string)) { e.onLocalCandidate = fn }
func (e *fakeEngine) OnDataChannel(fn func(webrtc.DataChannel))       { e.onDataChannel = fn }
func (e *fakeEngine) OnStateChange(fn func(string))                   { e.onStateChange = fn }
func (e *fakeEngine) OnGatheringStateChange(fn func(string))          { e.onGatheringStateChange = fn }

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.closeErr
}

// fakeChannel is a DataChannel whose lifecycle events are fired by the test.
type fakeChannel struct {
	label  string
	refuse bool

	mu        sync.Mutex
	open      bool
	closed    bool
	sent      []protocol.Payload
	onOpen    func()
	onClose   func()
	onMessage func(protocol.Payload)
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) Send(p protocol.Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.refuse {
		return false
	}
	c.sent = append(c.sent, p)
	return true
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) OnOpen(fn func())                    { c.onOpen = fn }
func (c *fakeChannel) OnClose(fn func())                   { c.onClose = fn }
func (c *fakeChannel) OnMessage(fn func(protocol.Payload)) { c.onMessage = fn }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.open, c.closed = false, true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) fireOpen() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.onOpen()
}

func (c *fakeChannel) fireClose() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.onClose()
}

func (c *fakeChannel) sentPayloads() []protocol.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Payload(nil), c.sent...)
}
