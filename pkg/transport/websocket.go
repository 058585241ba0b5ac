package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
)

const websocketConnectorName = "websocket"

// closeHandshakeTimeout bounds the write of the close frame during an
// orderly shutdown
const closeHandshakeTimeout = 5 * time.Second

// WebSocketConnector dials WebSocket endpoints using gorilla/websocket.
// The zero value is not usable; construct with NewWebSocketConnector.
type WebSocketConnector struct {
	// Dialer overrides the dialer used for the handshake; mainly for tests
	dialer *websocket.Dialer
}

// NewWebSocketConnector creates a WebSocket connector. Passing a nil dialer
// uses a fresh dialer configured from the per-attempt ConnectOptions.
func NewWebSocketConnector(dialer *websocket.Dialer) *WebSocketConnector {
	return &WebSocketConnector{dialer: dialer}
}

// Name implements the Connector interface
func (c *WebSocketConnector) Name() string {
	return websocketConnectorName
}

// Open implements the Connector interface. The handshake is bounded by the
// shorter of ctx and opts.HandshakeTimeout.
func (c *WebSocketConnector) Open(ctx context.Context, endpoint string, opts *ConnectOptions) (Connection, error) {
	opts = opts.clone()

	dialer := c.dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  opts.HandshakeTimeout,
			Subprotocols:      opts.Subprotocols,
			EnableCompression: opts.EnableCompression,
			ReadBufferSize:    opts.ReadBufferSize,
			WriteBufferSize:   opts.WriteBufferSize,
			TLSClientConfig:   opts.TLSClientConfig,
		}
	}

	if opts.Authenticator != nil {
		if err := opts.Authenticator.Apply(ctx, opts.Headers); err != nil {
			return nil, cherrors.ConnectFailed(websocketConnectorName, endpoint, err)
		}
	}

	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, opts.Headers)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, cherrors.ConnectTimeout(websocketConnectorName, endpoint, opts.HandshakeTimeout)
		}
		return nil, cherrors.ConnectFailed(websocketConnectorName, endpoint, err)
	}

	if opts.MaxMessageSize > 0 {
		ws.SetReadLimit(opts.MaxMessageSize)
	}

	conn := &wsConnection{
		ws:       ws,
		endpoint: endpoint,
		frames:   make(chan Frame, 1),
		readErr:  make(chan error, 1),
		done:     make(chan struct{}),
	}
	conn.startReadPump(opts.PongTimeout)
	if opts.PingInterval > 0 {
		conn.startKeepalive(opts.PingInterval, opts.PongTimeout)
	}
	return conn, nil
}

// wsConnection wraps a gorilla connection with a read pump so NextFrame can
// honor context cancellation. The pump is the only reader; the keepalive
// goroutine is the only writer until Close.
type wsConnection struct {
	ws       *websocket.Conn
	endpoint string

	frames  chan Frame
	readErr chan error

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	writeMu sync.Mutex
}

// Endpoint implements the Connection interface
func (c *wsConnection) Endpoint() string {
	return c.endpoint
}

// startReadPump launches the goroutine that owns all reads from the socket
func (c *wsConnection) startReadPump(pongTimeout time.Duration) {
	if pongTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		})
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			messageType, data, err := c.ws.ReadMessage()
			if err != nil {
				select {
				case c.readErr <- err:
				case <-c.done:
				}
				return
			}

			frame := Frame{Data: data}
			switch messageType {
			case websocket.TextMessage:
				frame.Type = TextFrame
			case websocket.BinaryMessage:
				frame.Type = BinaryFrame
			default:
				// Control frames are consumed by gorilla's handlers
				continue
			}

			select {
			case c.frames <- frame:
			case <-c.done:
				return
			}
		}
	}()
}

// startKeepalive launches the ping ticker goroutine
func (c *wsConnection) startKeepalive(interval, pongTimeout time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		writeWait := pongTimeout
		if writeWait <= 0 {
			writeWait = closeHandshakeTimeout
		}

		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}

// NextFrame implements the Connection interface
func (c *wsConnection) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case err := <-c.readErr:
		return Frame{}, err
	case <-c.done:
		return Frame{}, net.ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements the Connection interface. It attempts a close handshake
// before tearing down the underlying socket.
func (c *wsConnection) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(closeHandshakeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}

		c.writeMu.Lock()
		writeErr := c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		c.writeMu.Unlock()

		close(c.done)
		closeErr := c.ws.Close()
		c.wg.Wait()

		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			err = writeErr
		} else if closeErr != nil {
			err = closeErr
		}
	})
	return err
}

// isTimeout reports whether err is a dial or handshake timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
