// Package channelsdk provides a Golang client for long-lived streaming
// channels that survive transport failures
package channelsdk

import (
	"context"

	"github.com/channelkit/channel-sdk-go/pkg/channel"
	"github.com/channelkit/channel-sdk-go/pkg/protocol"
	"github.com/channelkit/channel-sdk-go/pkg/transport"
)

// Version represents the current version of the SDK
const Version = "1.0.0"

// Core types re-exported for callers who only need the root package
type (
	// Channel is a long-lived streaming session with automatic reconnection
	Channel = channel.Channel

	// Config configures a Channel
	Config = channel.Config

	// BackoffConfig controls reconnect delays
	BackoffConfig = channel.BackoffConfig

	// State is a channel lifecycle state
	State = channel.State

	// Message is one decoded server-pushed message
	Message = protocol.Message

	// Authenticator injects credentials into the connection handshake
	Authenticator = transport.Authenticator

	// BearerAuthenticator sets an Authorization: Bearer header
	BearerAuthenticator = transport.BearerAuthenticator
)

// Channel lifecycle states
const (
	StateClosed       = channel.StateClosed
	StateConnecting   = channel.StateConnecting
	StateOpen         = channel.StateOpen
	StateReconnecting = channel.StateReconnecting
	StateUpdating     = channel.StateUpdating
	StateClosing      = channel.StateClosing
)

// These exports provide direct access to the core SDK components
var (
	// NewChannel creates a channel from a config
	NewChannel = channel.New

	// DefaultConfig returns the default channel configuration
	DefaultConfig = channel.DefaultConfig

	// DefaultBackoffConfig returns the default reconnect backoff policy
	DefaultBackoffConfig = channel.DefaultBackoffConfig

	// NewWebSocketConnector creates the default WebSocket connector
	NewWebSocketConnector = transport.NewWebSocketConnector

	// DefaultConnectOptions returns the default per-connection options
	DefaultConnectOptions = transport.DefaultConnectOptions

	// NewJSONDecoder creates the default JSON frame decoder
	NewJSONDecoder = protocol.NewJSONDecoder
)

// Dial creates a channel with config and connects it to endpoint, blocking
// until the first connection succeeds or fails. A nil config uses defaults.
func Dial(ctx context.Context, endpoint string, config *channel.Config) (*channel.Channel, error) {
	ch := channel.New(config)
	if err := ch.Start(ctx, endpoint); err != nil {
		return nil, err
	}
	return ch, nil
}
