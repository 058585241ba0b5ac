package errors

import (
	"fmt"
	"net/url"
	"time"
)

// ConnectionErrorData contains structured data for connection-related errors
type ConnectionErrorData struct {
	Transport string        `json:"transport"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Epoch     uint64        `json:"epoch,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Retryable bool          `json:"retryable"`
	Reason    string        `json:"reason,omitempty"`
}

// ConnectFailed creates an error for a failed connection attempt
func ConnectFailed(transport, endpoint string, cause error) ChannelError {
	message := fmt.Sprintf("Failed to connect via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Failed to connect to %s via %s", hostOf(endpoint), transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeConnectFailed,
		message,
		CategoryConnection,
		SeverityError,
	).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  endpoint,
		Retryable: true,
		Reason:    reasonOf(cause),
	})
}

// ConnectTimeout creates an error for a connection that was not established in time
func ConnectTimeout(transport, endpoint string, timeout time.Duration) ChannelError {
	message := fmt.Sprintf("Connection timeout via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Connection timeout to %s via %s", hostOf(endpoint), transport)
	}
	if timeout > 0 {
		message = fmt.Sprintf("%s after %v", message, timeout)
	}

	return NewError(
		CodeConnectTimeout,
		message,
		CategoryTimeout,
		SeverityError,
	).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  endpoint,
		Timeout:   timeout,
		Retryable: true,
		Reason:    "timeout",
	})
}

// ConnectionLost creates an error for an epoch that ended unexpectedly
func ConnectionLost(transport, endpoint string, epoch uint64, cause error) ChannelError {
	message := fmt.Sprintf("Lost connection via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Lost connection to %s via %s", hostOf(endpoint), transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeConnectionLost,
		message,
		CategoryConnection,
		SeverityWarning,
	).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  endpoint,
		Epoch:     epoch,
		Retryable: true,
		Reason:    reasonOf(cause),
	})
}

// ReconnectExhausted creates an error for a reconnect loop that used up its
// configured attempt budget without re-establishing a connection
func ReconnectExhausted(endpoint string, attempts int, cause error) ChannelError {
	message := fmt.Sprintf("Reconnect gave up after %d attempts", attempts)
	if endpoint != "" {
		message = fmt.Sprintf("%s to %s", message, hostOf(endpoint))
	}

	return WrapError(
		cause,
		CodeReconnectExhausted,
		message,
		CategoryConnection,
		SeverityCritical,
	).WithData(&ConnectionErrorData{
		Endpoint:  endpoint,
		Attempts:  attempts,
		Retryable: false,
		Reason:    reasonOf(cause),
	})
}

// hostOf reduces an endpoint URL to its host for error messages; full URLs
// can carry long query strings that drown the message.
func hostOf(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}

func reasonOf(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
