package channel

import (
	"time"

	"github.com/channelkit/channel-sdk-go/pkg/logging"
	"github.com/channelkit/channel-sdk-go/pkg/protocol"
	"github.com/channelkit/channel-sdk-go/pkg/transport"
)

// Option modifies a channel configuration
type Option func(*Config)

// WithConnector sets the transport connector
func WithConnector(connector transport.Connector) Option {
	return func(c *Config) {
		c.Connector = connector
	}
}

// WithConnectOptions sets the per-connection options
func WithConnectOptions(opts *transport.ConnectOptions) Option {
	return func(c *Config) {
		c.ConnectOptions = opts
	}
}

// WithDecoder sets the frame decoder
func WithDecoder(decoder protocol.Decoder) Option {
	return func(c *Config) {
		c.Decoder = decoder
	}
}

// WithReconnect enables or disables automatic reconnection
func WithReconnect(enabled bool) Option {
	return func(c *Config) {
		c.Reconnect = enabled
	}
}

// WithMaxReconnectAttempts bounds consecutive failed attempts; zero retries
// forever
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Config) {
		c.MaxReconnectAttempts = n
	}
}

// WithConnectTimeout bounds how long Start and Update wait for first
// connectivity
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = d
	}
}

// WithCloseTimeout bounds how long Close waits for loop teardown
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CloseTimeout = d
	}
}

// WithBackoff sets the reconnect backoff policy
func WithBackoff(backoff BackoffConfig) Option {
	return func(c *Config) {
		c.Backoff = backoff
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}
