package protocol

import (
	"bytes"
	"encoding/json"
	"time"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
	"github.com/channelkit/channel-sdk-go/pkg/transport"
)

// Decoder turns raw inbound frames into Messages. Implementations must not
// fail across the boundary: a frame that cannot be decoded becomes a Message
// with the decode-error marker set.
type Decoder interface {
	Decode(frame transport.Frame, endpoint string, epoch uint64) *Message
}

// JSONDecoder decodes frame payloads as JSON. Numbers are preserved as
// json.Number so large sequence counters survive a round trip.
type JSONDecoder struct{}

// NewJSONDecoder creates the default frame decoder
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode implements the Decoder interface. It never returns an error; a
// malformed frame yields a Message carrying the decode failure and the
// original bytes.
func (d *JSONDecoder) Decode(frame transport.Frame, endpoint string, epoch uint64) *Message {
	msg := &Message{
		Endpoint: endpoint,
		Epoch:    epoch,
		Received: time.Now(),
	}

	var payload interface{}
	dec := json.NewDecoder(bytes.NewReader(frame.Data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		msg.DecodeErr = cherrors.DecodeFailed(frame.Type.String(), len(frame.Data), err)
		msg.Raw = append([]byte(nil), frame.Data...)
		return msg
	}

	// Trailing garbage after a valid JSON value is still a malformed frame
	if dec.More() {
		msg.DecodeErr = cherrors.DecodeFailed(frame.Type.String(), len(frame.Data), errTrailingData)
		msg.Raw = append([]byte(nil), frame.Data...)
		return msg
	}

	msg.Payload = payload
	return msg
}

// Encode renders a payload as a text frame. Used by tests and tooling; the
// channel itself is receive-only.
func (d *JSONDecoder) Encode(payload interface{}) (transport.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return transport.Frame{}, err
	}
	return transport.Frame{Type: transport.TextFrame, Data: data}, nil
}

var errTrailingData = trailingDataError{}

type trailingDataError struct{}

func (trailingDataError) Error() string { return "trailing data after JSON value" }
