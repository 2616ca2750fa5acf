// Package webrtc adapts pion/webrtc to the small event-driven engine surface
// the session orchestrator drives.
package webrtc

import "github.com/1ureka/datastream/internal/protocol"

// Engine is a peer-connection engine. It produces local negotiation events
// and accepts remote ones; connectivity and transport security happen
// inside it.
//
// Each On* method has a single registration point: a later call replaces
// the earlier handler. Handlers may run on engine-owned goroutines.
type Engine interface {
	// CreateDataChannel creates a channel and starts negotiation.
	CreateDataChannel(label string) (DataChannel, error)
	// SetRemoteDescription applies a remote "offer" or "answer".
	SetRemoteDescription(sdp, typ string) error
	// AddRemoteCandidate applies a remote connectivity candidate.
	AddRemoteCandidate(candidate, mid string) error

	OnLocalDescription(fn func(sdp, typ string))
	OnLocalCandidate(fn func(candidate, mid string))
	OnDataChannel(fn func(DataChannel))
	OnStateChange(fn func(state string))
	OnGatheringStateChange(fn func(state string))

	Close() error
}

// DataChannel is a bidirectional application payload pipe.
type DataChannel interface {
	Label() string
	// Send reports whether the payload was accepted for transmission.
	Send(p protocol.Payload) bool
	IsOpen() bool

	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(protocol.Payload))

	Close() error
}
