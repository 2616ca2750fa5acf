// Package signaling carries session-negotiation messages between two peers
// through a relay server. It provides the wire codec, a socket abstraction
// with a gorilla/websocket implementation, the per-pairing Channel, and the
// relay Server itself.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the kind of signaling message.
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// ParseKind maps a wire type string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOffer, KindAnswer, KindCandidate:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

func (k Kind) String() string { return string(k) }

// Decode failures. A *DecodeError wraps exactly one of these.
var (
	ErrMissingField = errors.New("missing field")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMalformed    = errors.New("malformed frame")
)

// DecodeError reports why an inbound frame could not become a Message.
type DecodeError struct {
	Field string // offending field, empty for malformed frames
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "decode signal message: " + e.Err.Error()
	}
	return fmt.Sprintf("decode signal message: %v %q", e.Err, e.Field)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message is one unit of the signaling protocol addressed to RemoteID.
// Description is set for offers and answers; Candidate and Mid are set for
// candidates. Values are built with NewDescription, NewCandidate or Decode
// and are not modified afterwards.
type Message struct {
	RemoteID    string
	Kind        Kind
	Description string
	Candidate   string
	Mid         string
}

// NewDescription wraps a local offer or answer for remoteID.
func NewDescription(remoteID string, kind Kind, sdp string) Message {
	return Message{RemoteID: remoteID, Kind: kind, Description: sdp}
}

// NewCandidate wraps a local connectivity candidate for remoteID.
func NewCandidate(remoteID, candidate, mid string) Message {
	return Message{RemoteID: remoteID, Kind: KindCandidate, Candidate: candidate, Mid: mid}
}

func (m Message) IsCandidate() bool { return m.Kind == KindCandidate }
func (m Message) IsOffer() bool     { return m.Kind == KindOffer }
func (m Message) IsAnswer() bool    { return m.Kind == KindAnswer }

// wireMessage is the JSON object exchanged over the signaling socket.
// Pointers distinguish an absent field from an empty one on decode.
type wireMessage struct {
	ID          *string `json:"id"`
	Type        *string `json:"type"`
	Description *string `json:"description,omitempty"`
	Candidate   *string `json:"candidate,omitempty"`
	Mid         *string `json:"mid,omitempty"`
}

// Encode serializes the message into a single JSON object.
func (m Message) Encode() []byte {
	typ := m.Kind.String()
	w := wireMessage{ID: &m.RemoteID, Type: &typ}
	if m.IsCandidate() {
		w.Candidate = &m.Candidate
		w.Mid = &m.Mid
	} else {
		w.Description = &m.Description
	}

	// Marshal cannot fail for a struct of string pointers.
	data, _ := json.Marshal(w)
	return data
}

// Decode parses one JSON frame into a Message. The id and type fields are
// required. Candidates require non-empty candidate and mid; offers and
// answers require a description field.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	if w.ID == nil || *w.ID == "" {
		return Message{}, &DecodeError{Field: "id", Err: ErrMissingField}
	}
	if w.Type == nil {
		return Message{}, &DecodeError{Field: "type", Err: ErrMissingField}
	}

	kind, err := ParseKind(*w.Type)
	if err != nil {
		return Message{}, &DecodeError{Field: "type", Err: ErrUnknownType}
	}

	msg := Message{RemoteID: *w.ID, Kind: kind}

	if kind == KindCandidate {
		if w.Candidate == nil || *w.Candidate == "" {
			return Message{}, &DecodeError{Field: "candidate", Err: ErrMissingField}
		}
		if w.Mid == nil || *w.Mid == "" {
			return Message{}, &DecodeError{Field: "mid", Err: ErrMissingField}
		}
		msg.Candidate = *w.Candidate
		msg.Mid = *w.Mid
		return msg, nil
	}

	if w.Description == nil {
		return Message{}, &DecodeError{Field: "description", Err: ErrMissingField}
	}
	msg.Description = *w.Description
	return msg, nil
}
