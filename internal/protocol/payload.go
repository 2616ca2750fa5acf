// Package protocol defines the payload unit carried by the signaling socket
// and the data channel.
package protocol

// Payload is one message frame, tagged as text or binary.
type Payload struct {
	Data   []byte
	IsText bool
}

// Text wraps s as a text payload.
func Text(s string) Payload {
	return Payload{Data: []byte(s), IsText: true}
}

// Binary wraps b as a binary payload. b is not copied.
func Binary(b []byte) Payload {
	return Payload{Data: b}
}

// String returns the payload content as a string regardless of its tag.
func (p Payload) String() string {
	return string(p.Data)
}

// Len returns the payload size in bytes.
func (p Payload) Len() int {
	return len(p.Data)
}
