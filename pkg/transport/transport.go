// Package transport provides the connection layer for channel streams.
//
// A Connector dials an endpoint and returns a Connection; the channel
// package drives Connections through its reconnect loop. The built-in
// WebSocketConnector covers the common case; middleware (logging,
// observability) wraps any Connector without changing its behavior.
//
// Usage:
//
//	connector := transport.NewWebSocketConnector(nil)
//	conn, err := connector.Open(ctx, "wss://host/streams", transport.DefaultConnectOptions())
package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net/http"
	"time"
)

// FrameType identifies the wire encoding of a received frame.
type FrameType int

const (
	// TextFrame carries UTF-8 text payloads (typically JSON)
	TextFrame FrameType = iota + 1
	// BinaryFrame carries opaque binary payloads
	BinaryFrame
)

// String returns the string representation of a frame type
func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is a single message received from the remote endpoint, exactly as
// it arrived on the wire.
type Frame struct {
	Type FrameType
	Data []byte
}

// Connection is a single established stream to an endpoint. Implementations
// are not safe for concurrent NextFrame calls; the channel loop is the only
// reader.
type Connection interface {
	// NextFrame blocks until the next frame arrives, the context is
	// canceled, or the connection fails. After an error the connection is
	// unusable and must be closed.
	NextFrame(ctx context.Context) (Frame, error)

	// Close performs an orderly shutdown of the connection. It is safe to
	// call more than once.
	Close(ctx context.Context) error

	// Endpoint returns the endpoint this connection was opened against.
	Endpoint() string
}

// Connector dials endpoints. Implementations must be safe for concurrent
// use; each Open returns an independent Connection.
type Connector interface {
	// Open establishes a new connection to the endpoint. The context bounds
	// the dial and handshake only, not the lifetime of the connection.
	Open(ctx context.Context, endpoint string, opts *ConnectOptions) (Connection, error)

	// Name identifies the connector for logging and metrics.
	Name() string
}

// Authenticator injects credentials into the handshake request.
type Authenticator interface {
	// Apply adds credentials to the handshake headers. It is called once
	// per connection attempt, so token refresh can happen here.
	Apply(ctx context.Context, header http.Header) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface
type AuthenticatorFunc func(ctx context.Context, header http.Header) error

// Apply implements the Authenticator interface
func (f AuthenticatorFunc) Apply(ctx context.Context, header http.Header) error {
	return f(ctx, header)
}

// HeaderAuthenticator sets a static header on every handshake
type HeaderAuthenticator struct {
	Header string
	Value  string
}

// Apply implements the Authenticator interface
func (a *HeaderAuthenticator) Apply(_ context.Context, header http.Header) error {
	header.Set(a.Header, a.Value)
	return nil
}

// BearerAuthenticator sets an Authorization: Bearer header. If TokenFunc is
// set it is consulted on every attempt, which allows rotating tokens across
// reconnects; otherwise the static Token is used.
type BearerAuthenticator struct {
	Token     string
	TokenFunc func(ctx context.Context) (string, error)
}

// Apply implements the Authenticator interface
func (a *BearerAuthenticator) Apply(ctx context.Context, header http.Header) error {
	token := a.Token
	if a.TokenFunc != nil {
		t, err := a.TokenFunc(ctx)
		if err != nil {
			return err
		}
		token = t
	}
	header.Set("Authorization", "Bearer "+token)
	return nil
}

// BasicAuthenticator sets an Authorization: Basic header
type BasicAuthenticator struct {
	Username string
	Password string
}

// Apply implements the Authenticator interface
func (a *BasicAuthenticator) Apply(_ context.Context, header http.Header) error {
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	header.Set("Authorization", "Basic "+credentials)
	return nil
}

// ConnectOptions configures a single connection attempt
type ConnectOptions struct {
	// Headers are sent with the handshake request
	Headers http.Header

	// Subprotocols to negotiate during the handshake
	Subprotocols []string

	// HandshakeTimeout bounds the dial and handshake
	HandshakeTimeout time.Duration

	// EnableCompression enables per-message compression negotiation
	EnableCompression bool

	// PingInterval is how often keepalive pings are sent; zero disables
	// keepalive
	PingInterval time.Duration

	// PongTimeout is how long to wait for traffic after a ping before the
	// connection is considered dead
	PongTimeout time.Duration

	// MaxMessageSize limits the size of inbound frames; zero means no limit
	MaxMessageSize int64

	// ReadBufferSize and WriteBufferSize size the connection I/O buffers;
	// zero uses the transport defaults
	ReadBufferSize  int
	WriteBufferSize int

	// TLSClientConfig configures TLS for secure endpoints
	TLSClientConfig *tls.Config

	// Authenticator injects credentials into each handshake
	Authenticator Authenticator
}

// DefaultConnectOptions returns connection options with sensible defaults
func DefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		Headers:          http.Header{},
		HandshakeTimeout: 15 * time.Second,
		PongTimeout:      60 * time.Second,
		PingInterval:     54 * time.Second, // under PongTimeout so pongs arrive in time
	}
}

// clone returns a copy so callers can reuse options across attempts
func (o *ConnectOptions) clone() *ConnectOptions {
	if o == nil {
		return DefaultConnectOptions()
	}
	c := *o
	c.Headers = o.Headers.Clone()
	if c.Headers == nil {
		c.Headers = http.Header{}
	}
	c.Subprotocols = append([]string(nil), o.Subprotocols...)
	return &c
}
