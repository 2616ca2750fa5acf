package signaling

import (
	"sync"

	"github.com/1ureka/datastream/internal/protocol"
	"github.com/1ureka/datastream/internal/util"
)

// ConnectionError is the rejection reason of Channel.Connected when the
// socket fails before it opens.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return "signaling connection to " + e.URL + " failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Channel carries signaling messages for one peer pairing over a Socket.
// Inbound frames reach the handler only if they decode and are addressed
// with this channel's remote id; the relay may carry traffic for many other
// pairings on the same server.
type Channel struct {
	url      string
	remoteID string

	socket    Socket
	connected *util.Signal
	stats     *util.Stats
	log       *util.Logger

	mu      sync.RWMutex
	handler func(Message)
}

// NewChannel takes ownership of socket and registers its callbacks. Nothing
// is sent until Open. stats and log may be nil.
func NewChannel(socket Socket, url, remoteID string, stats *util.Stats, log *util.Logger) *Channel {
	if stats == nil {
		stats = &util.Stats{}
	}
	c := &Channel{
		url:       url,
		remoteID:  remoteID,
		socket:    socket,
		connected: util.NewSignal(),
		stats:     stats,
		log:       log.With("component", "signaling", "remote", remoteID),
	}

	socket.OnOpen(func() {
		if c.connected.Resolve() {
			c.log.Info("connected to signaling server", "url", url)
		}
	})

	socket.OnClosed(func() {
		c.log.Info("signaling connection closed", "url", url)
	})

	socket.OnError(func(err error) {
		c.log.Error("signaling connection error", "url", url, "err", err)
		c.connected.Reject(&ConnectionError{URL: url, Err: err})
	})

	socket.OnMessage(c.handleFrame)

	return c
}

// Open asks the socket to connect. Completion is reported by Connected.
func (c *Channel) Open() {
	c.log.Info("opening signaling connection", "url", c.url)
	c.socket.Open(c.url)
}

// Send encodes msg as one text frame. It reports whether the socket
// accepted it.
func (c *Channel) Send(msg Message) bool {
	ok := c.socket.Send(protocol.Payload{Data: msg.Encode(), IsText: true})
	if ok {
		c.stats.AddSignalSent()
	} else {
		c.log.Warn("signaling send refused", "type", msg.Kind)
	}
	return ok
}

// Connected returns the one-shot signal settled when the socket opens
// (resolved) or fails first (rejected with *ConnectionError).
func (c *Channel) Connected() *util.Signal {
	return c.connected
}

// OnMessage sets the handler for accepted inbound messages, replacing any
// previous one.
func (c *Channel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Channel) RemoteID() string { return c.remoteID }
func (c *Channel) IsOpen() bool     { return c.socket.IsOpen() }
func (c *Channel) IsClosed() bool   { return c.socket.IsClosed() }

// Close releases the socket.
func (c *Channel) Close() error {
	return c.socket.Close()
}

// handleFrame applies the inbound policy: text only, decodable, addressed
// with our remote id.
func (c *Channel) handleFrame(p protocol.Payload) {
	if !p.IsText {
		return
	}

	msg, err := Decode(p.Data)
	if err != nil {
		c.stats.AddSignalDropped()
		c.log.Warn("dropping undecodable signaling frame", "err", err)
		return
	}

	if msg.RemoteID != c.remoteID {
		c.stats.AddSignalDropped()
		c.log.Debug("ignoring signaling message for another peer", "id", msg.RemoteID)
		return
	}

	c.mu.RLock()
	fn := c.handler
	c.mu.RUnlock()

	c.stats.AddSignalRecv()
	if fn != nil {
		fn(msg)
	}
}
