package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/1ureka/datastream/internal/config"
	"github.com/1ureka/datastream/internal/protocol"
	"github.com/1ureka/datastream/internal/signaling"
	"github.com/1ureka/datastream/internal/util"
)

func testConfig(role config.Role) config.Config {
	cfg := config.Config{
		Role:      role,
		SignalURL: "ws://sig",
		LocalID:   "peerA",
		RemoteID:  "peerB",
	}
	if role == config.RoleResponder {
		cfg.LocalID, cfg.RemoteID = "peerB", "peerA"
	}
	return cfg
}

func newTestSession(t *testing.T, cfg config.Config) (*Session, *fakeSocket, *fakeEngine) {
	t.Helper()
	sock := &fakeSocket{}
	engine := &fakeEngine{}
	s, err := New(cfg, WithSocket(sock), WithEngine(engine), WithLogger(util.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, sock, engine
}

// TestInitiatorFlow walks the initiator from Open to channel close.
func TestInitiatorFlow(t *testing.T) {
	cfg := testConfig(config.RoleInitiator)
	cfg.Greeting = "Hello, you must be peerB"
	s, sock, engine := newTestSession(t, cfg)

	if s.State() != StateCreated {
		t.Fatalf("initial state: got %s", s.State())
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sock.url != "ws://sig/peerA" {
		t.Errorf("socket url: got %q, want ws://sig/peerA", sock.url)
	}
	if s.State() != StateNegotiating {
		t.Errorf("state after Open: got %s, want negotiating", s.State())
	}

	if len(engine.created) != 1 || engine.created[0].label != config.DefaultLabel {
		t.Fatalf("created channels: %+v", engine.created)
	}
	sent := sock.messages(t)
	if len(sent) != 1 || !sent[0].IsOffer() || sent[0].RemoteID != "peerB" || sent[0].Description != "offer-sdp" {
		t.Fatalf("sent signals: got %+v, want one offer to peerB", sent)
	}

	sock.deliver(signaling.NewDescription("peerB", signaling.KindAnswer, "answer-sdp"))
	sock.deliver(signaling.NewCandidate("peerB", "cand-1", "0"))
	sock.deliver(signaling.NewCandidate("peerC", "cand-x", "0"))

	if len(engine.remoteDescs) != 1 || engine.remoteDescs[0] != (remoteDescription{"answer-sdp", "answer"}) {
		t.Errorf("remote descriptions: got %+v", engine.remoteDescs)
	}
	if len(engine.candidates) != 1 || engine.candidates[0] != "cand-1@0" {
		t.Errorf("remote candidates: got %v", engine.candidates)
	}

	dc := engine.created[0]
	if s.ChannelOpen().Settled() {
		t.Fatal("channel open settled too early")
	}
	dc.fireOpen()
	dc.fireOpen()

	if !s.ChannelOpen().Settled() || s.State() != StateChannelOpen {
		t.Fatalf("after open: settled=%v state=%s", s.ChannelOpen().Settled(), s.State())
	}
	greetings := dc.sentPayloads()
	if len(greetings) != 1 || !greetings[0].IsText || greetings[0].String() != cfg.Greeting {
		t.Fatalf("greeting: got %+v, want exactly one %q", greetings, cfg.Greeting)
	}

	if !s.SendText("ping") || !s.SendBinary([]byte{1, 2, 3}) {
		t.Fatal("Send on open channel failed")
	}
	if got := s.Stats().MessagesSent.Load(); got != 3 {
		t.Errorf("MessagesSent: got %d, want 3", got)
	}

	dc.fireClose()
	dc.fireClose()
	if !s.ChannelClosed().Settled() || s.State() != StateClosed {
		t.Fatalf("after close: settled=%v state=%s", s.ChannelClosed().Settled(), s.State())
	}
	if s.Send(protocol.Text("late")) {
		t.Error("Send after close should fail")
	}
}

// TestResponderFlow checks that the responder answers an offer, adopts the
// announced channel, and dispatches payloads to the right handlers.
func TestResponderFlow(t *testing.T) {
	s, sock, engine := newTestSession(t, testConfig(config.RoleResponder))

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(engine.created) != 0 {
		t.Fatal("responder must not create a data channel")
	}
	if s.State() != StateSignalingOpen {
		t.Errorf("state after Open: got %s, want signaling-open", s.State())
	}

	sock.deliver(signaling.NewDescription("peerA", signaling.KindOffer, "offer-sdp"))
	sent := sock.messages(t)
	if len(sent) != 1 || !sent[0].IsAnswer() || sent[0].RemoteID != "peerA" {
		t.Fatalf("sent signals: got %+v, want one answer to peerA", sent)
	}

	dc := &fakeChannel{label: "chat"}
	engine.onDataChannel(dc)
	dc.fireOpen()
	if !s.ChannelOpen().Settled() {
		t.Fatal("channel open not resolved for announced channel")
	}
	if len(dc.sentPayloads()) != 0 {
		t.Error("no greeting configured, nothing should be sent")
	}

	var order []string
	s.OnMessage(func(p protocol.Payload) { order = append(order, "any:"+p.String()) })
	s.OnText(func(text string) { order = append(order, "text:"+text) })
	s.OnBinary(func(b []byte) { order = append(order, "binary:"+string(b)) })

	dc.onMessage(protocol.Text("hi"))
	dc.onMessage(protocol.Binary([]byte("raw")))

	want := []string{"any:hi", "text:hi", "any:raw", "binary:raw"}
	if len(order) != len(want) {
		t.Fatalf("dispatch order: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order: got %v, want %v", order, want)
		}
	}
	if got := s.Stats().BytesRecv.Load(); got != 5 {
		t.Errorf("BytesRecv: got %d, want 5", got)
	}
}

func TestLocalCandidatesForwarded(t *testing.T) {
	s, sock, engine := newTestSession(t, testConfig(config.RoleResponder))
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	engine.onLocalCandidate("cand-1", "0")
	engine.onLocalDescription("sdp", "pranswer")
	engine.onStateChange("connected")
	engine.onGatheringStateChange("complete")

	sent := sock.messages(t)
	if len(sent) != 1 || !sent[0].IsCandidate() || sent[0].Candidate != "cand-1" || sent[0].Mid != "0" {
		t.Fatalf("sent signals: got %+v, want one candidate", sent)
	}
}

func TestSendWithoutChannel(t *testing.T) {
	s, _, engine := newTestSession(t, testConfig(config.RoleInitiator))
	if s.SendText("x") {
		t.Fatal("Send without a channel must fail")
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.SendText("x") {
		t.Fatal("Send before the channel opens must fail")
	}

	dc := engine.created[0]
	dc.fireOpen()
	dc.refuse = true
	if s.SendText("x") {
		t.Fatal("Send must report a refused payload")
	}
	if got := s.Stats().MessagesSent.Load(); got != 0 {
		t.Errorf("MessagesSent: got %d, want 0", got)
	}
}

func TestOpenTwice(t *testing.T) {
	s, _, _ := newTestSession(t, testConfig(config.RoleInitiator))
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(context.Background()); !errors.Is(err, ErrAlreadyOpened) {
		t.Fatalf("second Open: got %v, want ErrAlreadyOpened", err)
	}
}

func TestOpenConnectionError(t *testing.T) {
	sock := &fakeSocket{openErr: errors.New("refused")}
	s, err := New(testConfig(config.RoleInitiator), WithSocket(sock), WithEngine(&fakeEngine{}), WithLogger(util.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.Open(context.Background())
	var ce *signaling.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Open: got %v, want *signaling.ConnectionError", err)
	}
	if s.ChannelOpen().Settled() {
		t.Error("channel open must stay pending")
	}
}

func TestOpenContextDone(t *testing.T) {
	sock := &fakeSocket{hold: true}
	engine := &fakeEngine{}
	s, err := New(testConfig(config.RoleInitiator), WithSocket(sock), WithEngine(engine), WithLogger(util.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Open(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Open: got %v, want deadline exceeded", err)
	}
	if len(engine.created) != 0 {
		t.Error("no channel should be created before signaling opens")
	}
}

func TestOpenCreateChannelError(t *testing.T) {
	engine := &fakeEngine{createErr: errors.New("no sctp")}
	s, err := New(testConfig(config.RoleInitiator), WithSocket(&fakeSocket{}), WithEngine(engine), WithLogger(util.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Open(context.Background()); !errors.Is(err, engine.createErr) {
		t.Fatalf("Open: got %v, want wrapped create error", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "no role", mutate: func(c *config.Config) { c.Role = "" }},
		{name: "no remote id", mutate: func(c *config.Config) { c.RemoteID = "" }},
		{name: "bad url", mutate: func(c *config.Config) { c.SignalURL = "ftp://sig" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(config.RoleInitiator)
			tc.mutate(&cfg)
			if _, err := New(cfg, WithSocket(&fakeSocket{}), WithEngine(&fakeEngine{})); err == nil {
				t.Fatal("New should fail")
			}
		})
	}
}

// TestNewWithoutLocalID uses the signaling URL as given.
func TestNewWithoutLocalID(t *testing.T) {
	cfg := testConfig(config.RoleInitiator)
	cfg.LocalID = ""
	s, sock, _ := newTestSession(t, cfg)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sock.url != "ws://sig" {
		t.Fatalf("socket url: got %q, want ws://sig", sock.url)
	}
}

func TestClose(t *testing.T) {
	s, sock, engine := newTestSession(t, testConfig(config.RoleInitiator))
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	dc := engine.created[0]
	engine.closeErr = errors.New("engine stuck")

	err := s.Close()
	if !errors.Is(err, engine.closeErr) {
		t.Fatalf("Close: got %v, want wrapped engine error", err)
	}
	if !dc.closed || !engine.closed || !sock.closed {
		t.Errorf("teardown: channel=%v engine=%v socket=%v", dc.closed, engine.closed, sock.closed)
	}
	if s.State() != StateClosed {
		t.Errorf("state: got %s, want closed", s.State())
	}
	if s.SendText("x") {
		t.Error("Send after Close should fail")
	}
}

func TestStateString(t *testing.T) {
	if StateChannelOpen.String() != "channel-open" || State(99).String() != "unknown" {
		t.Fatalf("State.String mismatch")
	}
}

// TestSendWaitFallback covers SendWait on a channel without a blocking mode.
func TestSendWaitFallback(t *testing.T) {
	s, _, engine := newTestSession(t, testConfig(config.RoleInitiator))
	ctx := context.Background()

	if err := s.SendWait(ctx, protocol.Text("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("SendWait without channel: got %v, want ErrNotOpen", err)
	}
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	dc := engine.created[0]
	dc.fireOpen()
	if err := s.SendWait(ctx, protocol.Text("x")); err != nil {
		t.Fatalf("SendWait: %v", err)
	}
	dc.refuse = true
	if err := s.SendWait(ctx, protocol.Text("y")); !errors.Is(err, ErrRefused) {
		t.Fatalf("SendWait on refusing channel: got %v, want ErrRefused", err)
	}
	if got := s.Stats().MessagesSent.Load(); got != 1 {
		t.Errorf("MessagesSent: got %d, want 1", got)
	}
}
