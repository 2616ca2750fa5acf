package session

// State is the coarse lifecycle position of a Session. It only moves
// forward; Closed is terminal.
type State int32

const (
	StateCreated          State = iota // constructed, Open not called
	StateSignalingPending              // socket connecting
	StateSignalingOpen                 // socket open, negotiation not started
	StateNegotiating                   // offer/answer and candidates in flight
	StateChannelOpen                   // data channel usable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSignalingPending:
		return "signaling-pending"
	case StateSignalingOpen:
		return "signaling-open"
	case StateNegotiating:
		return "negotiating"
	case StateChannelOpen:
		return "channel-open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
