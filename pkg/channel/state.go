package channel

// State is the lifecycle state of a Channel. A Channel is in exactly one
// state at a time; transitions are atomic with respect to Recv, Update and
// Close.
type State int

const (
	// StateClosed is the initial and terminal state
	StateClosed State = iota
	// StateConnecting means the first connection attempt is in flight
	StateConnecting
	// StateOpen means a connection is established and frames are flowing
	StateOpen
	// StateReconnecting means the connection was lost and the loop is
	// retrying with backoff
	StateReconnecting
	// StateUpdating means a live endpoint swap is in progress
	StateUpdating
	// StateClosing means teardown has started but not yet finished
	StateClosing
)

// String returns the string representation of a state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateUpdating:
		return "updating"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
