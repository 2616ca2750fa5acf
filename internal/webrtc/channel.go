package webrtc

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/datastream/internal/protocol"
)

const (
	HighWaterMark = 1024 * 1024 // refuse sends while bufferedAmount exceeds this
	LowWaterMark  = 256 * 1024  // SendWait resumes once bufferedAmount drops below this
)

// ErrNotOpen is returned by SendWait when the channel is not open.
var ErrNotOpen = errors.New("data channel not open")

// BlockingSender is implemented by channels that can wait for send buffer
// space instead of refusing a payload.
type BlockingSender interface {
	SendWait(ctx context.Context, p protocol.Payload) error
}

// Channel wraps a pion DataChannel as a DataChannel. Send never blocks:
// when the SCTP buffer is above HighWaterMark it refuses the payload.
// SendWait is the blocking alternative.
type Channel struct {
	raw   *webrtc.DataChannel
	drain chan struct{}
}

// NewChannel wraps raw and wires its low-water callback.
func NewChannel(raw *webrtc.DataChannel) *Channel {
	c := &Channel{
		raw:   raw,
		drain: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.drain <- struct{}{}:
		default:
		}
	})

	return c
}

// Send transmits p if the channel is open and not saturated.
func (c *Channel) Send(p protocol.Payload) bool {
	if !c.IsOpen() {
		return false
	}
	if c.raw.BufferedAmount() > uint64(HighWaterMark) {
		return false
	}
	return c.write(p) == nil
}

// SendWait transmits p, first pausing while the send buffer is above
// HighWaterMark until it drains below LowWaterMark or ctx is done.
func (c *Channel) SendWait(ctx context.Context, p protocol.Payload) error {
	for {
		if !c.IsOpen() {
			return ErrNotOpen
		}
		if c.raw.BufferedAmount() <= uint64(HighWaterMark) {
			return c.write(p)
		}
		select {
		case <-c.drain:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) write(p protocol.Payload) error {
	if p.IsText {
		return c.raw.SendText(string(p.Data))
	}
	return c.raw.Send(p.Data)
}

// OnMessage registers the inbound payload callback.
func (c *Channel) OnMessage(fn func(protocol.Payload)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(protocol.Payload{Data: msg.Data, IsText: msg.IsString})
	})
}

func (c *Channel) IsOpen() bool {
	return c.raw.ReadyState() == webrtc.DataChannelStateOpen
}

// Label / OnOpen / OnClose / Close / Raw delegate to the underlying channel.
func (c *Channel) Label() string            { return c.raw.Label() }
func (c *Channel) OnOpen(fn func())         { c.raw.OnOpen(fn) }
func (c *Channel) OnClose(fn func())        { c.raw.OnClose(fn) }
func (c *Channel) Close() error             { return c.raw.Close() }
func (c *Channel) Raw() *webrtc.DataChannel { return c.raw }

var (
	_ DataChannel    = (*Channel)(nil)
	_ BlockingSender = (*Channel)(nil)
)
