package errors

// Channel SDK error codes. Codes are stable across releases so callers can
// switch on them; ranges group related failures.
const (
	// Connection errors (100-199)
	CodeConnectFailed      int = 100 // Initial connection attempt failed
	CodeConnectTimeout     int = 101 // Connection not established within the connect timeout
	CodeConnectionLost     int = 102 // Established connection ended unexpectedly
	CodeReconnectExhausted int = 103 // Configured reconnect attempts used up

	// Lifecycle errors (200-299)
	CodeChannelClosed       int = 200 // Operation attempted on or after a closed channel
	CodeOperationInProgress int = 201 // Another control operation is mid-transition

	// Consumer errors (300-399)
	CodeConcurrentAccess int = 300 // Second consumer tried to receive concurrently

	// Update errors (400-499)
	CodeUpdateFailed     int = 400 // Endpoint update failed with no rollback requested
	CodeUpdateRolledBack int = 401 // Endpoint update failed; previous endpoint restored

	// Decode errors (500-599)
	CodeDecodeFailed int = 500 // Frame payload could not be decoded
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeConnectFailed:      {CodeConnectFailed, "ConnectFailed", "Initial connection attempt failed", CategoryConnection, SeverityError},
	CodeConnectTimeout:     {CodeConnectTimeout, "ConnectTimeout", "Connection not established in time", CategoryTimeout, SeverityError},
	CodeConnectionLost:     {CodeConnectionLost, "ConnectionLost", "Connection ended unexpectedly", CategoryConnection, SeverityWarning},
	CodeReconnectExhausted: {CodeReconnectExhausted, "ReconnectExhausted", "Reconnect attempts used up", CategoryConnection, SeverityCritical},

	CodeChannelClosed:       {CodeChannelClosed, "ChannelClosed", "Channel is closed", CategoryLifecycle, SeverityInfo},
	CodeOperationInProgress: {CodeOperationInProgress, "OperationInProgress", "Control operation already in flight", CategoryLifecycle, SeverityError},

	CodeConcurrentAccess: {CodeConcurrentAccess, "ConcurrentAccess", "Concurrent receive on single-consumer channel", CategoryConsumer, SeverityError},

	CodeUpdateFailed:     {CodeUpdateFailed, "UpdateFailed", "Endpoint update failed", CategoryUpdate, SeverityCritical},
	CodeUpdateRolledBack: {CodeUpdateRolledBack, "UpdateRolledBack", "Endpoint update rolled back", CategoryUpdate, SeverityWarning},

	CodeDecodeFailed: {CodeDecodeFailed, "DecodeFailed", "Frame payload could not be decoded", CategoryDecode, SeverityWarning},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, ok := errorCodeRegistry[code]
	return info, ok
}

// CodeName returns the symbolic name for a code, or "Unknown"
func CodeName(code int) string {
	if info, ok := errorCodeRegistry[code]; ok {
		return info.Name
	}
	return "Unknown"
}
