package errors

import "fmt"

// UpdateErrorData contains structured data for endpoint-update errors
type UpdateErrorData struct {
	PreviousEndpoint string `json:"previous_endpoint,omitempty"`
	NewEndpoint      string `json:"new_endpoint,omitempty"`
	RolledBack       bool   `json:"rolled_back"`
	Reason           string `json:"reason,omitempty"`
}

// ChannelClosed creates an error for an operation on a closed channel. The
// cause, when present, is the terminal failure that closed the channel.
func ChannelClosed(cause error) ChannelError {
	message := "Channel is closed"
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeChannelClosed,
		message,
		CategoryLifecycle,
		SeverityInfo,
	)
}

// OperationInProgress creates an error for a control operation attempted
// while another is mid-transition
func OperationInProgress(operation string) ChannelError {
	return NewErrorf(
		CodeOperationInProgress,
		CategoryLifecycle,
		SeverityError,
		"Cannot %s: another control operation is in progress", operation,
	)
}

// ConcurrentAccess creates an error for a second concurrent consumer
func ConcurrentAccess() ChannelError {
	return NewError(
		CodeConcurrentAccess,
		"Cannot receive while another caller is already waiting for the next message",
		CategoryConsumer,
		SeverityError,
	)
}

// UpdateFailed creates an error for an endpoint update that failed with no
// rollback requested; the channel is closed as a result.
func UpdateFailed(previous, next string, cause error) ChannelError {
	message := fmt.Sprintf("Endpoint update to %s failed", hostOf(next))
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeUpdateFailed,
		message,
		CategoryUpdate,
		SeverityCritical,
	).WithData(&UpdateErrorData{
		PreviousEndpoint: previous,
		NewEndpoint:      next,
		RolledBack:       false,
		Reason:           reasonOf(cause),
	})
}

// UpdateRolledBack creates the distinguished outcome for an endpoint update
// that failed but whose previous endpoint was successfully restored; the
// channel remains open.
func UpdateRolledBack(previous, next string, cause error) ChannelError {
	message := fmt.Sprintf("Endpoint update to %s failed; rolled back to %s", hostOf(next), hostOf(previous))
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeUpdateRolledBack,
		message,
		CategoryUpdate,
		SeverityWarning,
	).WithData(&UpdateErrorData{
		PreviousEndpoint: previous,
		NewEndpoint:      next,
		RolledBack:       true,
		Reason:           reasonOf(cause),
	})
}

// IsChannelClosed reports whether err indicates a closed channel
func IsChannelClosed(err error) bool {
	return IsCode(err, CodeChannelClosed)
}

// IsUpdateRolledBack reports whether err is the distinguished rollback outcome
func IsUpdateRolledBack(err error) bool {
	return IsCode(err, CodeUpdateRolledBack)
}

// IsConcurrentAccess reports whether err indicates a second concurrent consumer
func IsConcurrentAccess(err error) bool {
	return IsCode(err, CodeConcurrentAccess)
}

// IsReconnectExhausted reports whether err indicates an exhausted reconnect budget
func IsReconnectExhausted(err error) bool {
	return IsCode(err, CodeReconnectExhausted)
}
