package errors

import "fmt"

// DecodeErrorData contains structured data for frame-decode failures
type DecodeErrorData struct {
	FrameType string `json:"frame_type"`
	FrameSize int    `json:"frame_size"`
	Reason    string `json:"reason,omitempty"`
}

// DecodeFailed creates an error for a frame whose payload could not be
// decoded. These errors travel inside a Message rather than terminating the
// consumer's iteration.
func DecodeFailed(frameType string, frameSize int, cause error) ChannelError {
	message := fmt.Sprintf("Failed to decode %s frame (%d bytes)", frameType, frameSize)
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeDecodeFailed,
		message,
		CategoryDecode,
		SeverityWarning,
	).WithData(&DecodeErrorData{
		FrameType: frameType,
		FrameSize: frameSize,
		Reason:    reasonOf(cause),
	})
}

// IsDecodeFailed reports whether err indicates a frame-decode failure
func IsDecodeFailed(err error) bool {
	return IsCode(err, CodeDecodeFailed)
}
