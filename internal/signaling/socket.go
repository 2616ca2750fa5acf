package signaling

import "github.com/1ureka/datastream/internal/protocol"

// Socket is the duplex message socket a Channel talks through. WebSocket is
// the production implementation; tests substitute their own.
//
// Open starts connecting and returns immediately. Exactly one of OnOpen or
// OnError is expected to follow. Handlers registered later replace earlier
// ones.
type Socket interface {
	Open(url string)
	Send(p protocol.Payload) bool
	IsOpen() bool
	IsClosed() bool
	Close() error

	OnOpen(fn func())
	OnClosed(fn func())
	OnError(fn func(err error))
	OnMessage(fn func(p protocol.Payload))
}
