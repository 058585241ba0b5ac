// Package protocol defines the decoded message type delivered to channel
// consumers and the frame decoder that produces it.
package protocol

import (
	"time"
)

// Message is an immutable decoded unit of server-pushed data. Messages are
// attributed to the endpoint and connection epoch that produced them, which
// matters across endpoint updates and reconnects.
type Message struct {
	// Endpoint is the URL of the connection that produced this message
	Endpoint string

	// Epoch is the connection generation that produced this message.
	// Messages are never attributed across epochs.
	Epoch uint64

	// Received is when the frame arrived
	Received time.Time

	// Payload is the decoded frame content. Nil when DecodeErr is set.
	Payload interface{}

	// DecodeErr marks a frame that could not be decoded. The consumer's
	// iteration is never interrupted by a malformed frame; it is delivered
	// as data with this marker set.
	DecodeErr error

	// Raw preserves the original frame bytes when decoding failed
	Raw []byte
}

// IsDecodeError reports whether this message carries a decode failure
// instead of a payload
func (m *Message) IsDecodeError() bool {
	return m.DecodeErr != nil
}
