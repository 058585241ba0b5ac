package transport

import (
	"context"
	"net"
	"sync"
	"time"
)

// ScriptedConnection is an in-memory Connection for tests. Frames and
// failures are injected from the test goroutine; NextFrame delivers them in
// order.
type ScriptedConnection struct {
	endpoint string

	frames chan Frame
	errs   chan error

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewScriptedConnection creates a scripted connection for the endpoint
func NewScriptedConnection(endpoint string) *ScriptedConnection {
	return &ScriptedConnection{
		endpoint: endpoint,
		frames:   make(chan Frame, 64),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// PushText injects a text frame
func (c *ScriptedConnection) PushText(data string) {
	c.frames <- Frame{Type: TextFrame, Data: []byte(data)}
}

// PushBinary injects a binary frame
func (c *ScriptedConnection) PushBinary(data []byte) {
	c.frames <- Frame{Type: BinaryFrame, Data: data}
}

// Fail makes the next NextFrame call (after queued frames drain) return err,
// simulating a dropped connection.
func (c *ScriptedConnection) Fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// NextFrame implements the Connection interface
func (c *ScriptedConnection) NextFrame(ctx context.Context) (Frame, error) {
	// Drain queued frames before reporting failure, matching a real socket
	// where buffered data is readable after the peer drops.
	select {
	case frame := <-c.frames:
		return frame, nil
	default:
	}

	select {
	case frame := <-c.frames:
		return frame, nil
	case err := <-c.errs:
		return Frame{}, err
	case <-c.done:
		return Frame{}, net.ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements the Connection interface
func (c *ScriptedConnection) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Endpoint implements the Connection interface
func (c *ScriptedConnection) Endpoint() string {
	return c.endpoint
}

// IsClosed reports whether Close has been called
func (c *ScriptedConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WaitClosed blocks until Close is called or the timeout elapses
func (c *ScriptedConnection) WaitClosed(timeout time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ScriptedConnector is an in-memory Connector for tests. By default every
// Open succeeds with a fresh ScriptedConnection; failures can be queued to
// exercise retry paths.
type ScriptedConnector struct {
	mu        sync.Mutex
	conns     []*ScriptedConnection
	endpoints []string
	failures  []error
	openDelay time.Duration

	// OnOpen, when set, is invoked for each successful open with the new
	// connection, before Open returns
	OnOpen func(conn *ScriptedConnection)
}

// NewScriptedConnector creates a scripted connector
func NewScriptedConnector() *ScriptedConnector {
	return &ScriptedConnector{}
}

// Name implements the Connector interface
func (c *ScriptedConnector) Name() string {
	return "scripted"
}

// FailNext queues errors to be returned by the next len(errs) Open calls
func (c *ScriptedConnector) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

// SetOpenDelay makes every Open block for d before completing
func (c *ScriptedConnector) SetOpenDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openDelay = d
}

// Open implements the Connector interface
func (c *ScriptedConnector) Open(ctx context.Context, endpoint string, _ *ConnectOptions) (Connection, error) {
	c.mu.Lock()
	delay := c.openDelay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.endpoints = append(c.endpoints, endpoint)

	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return nil, err
	}

	conn := NewScriptedConnection(endpoint)
	c.conns = append(c.conns, conn)
	if c.OnOpen != nil {
		c.OnOpen(conn)
	}
	return conn, nil
}

// OpenCount returns the number of Open calls, including failed ones
func (c *ScriptedConnector) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.endpoints)
}

// OpenedEndpoints returns the endpoints passed to Open, in order
func (c *ScriptedConnector) OpenedEndpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.endpoints...)
}

// Conn returns the i-th successfully opened connection, or nil
func (c *ScriptedConnector) Conn(i int) *ScriptedConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.conns) {
		return nil
	}
	return c.conns[i]
}

// LastConn returns the most recently opened connection, or nil
func (c *ScriptedConnector) LastConn() *ScriptedConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[len(c.conns)-1]
}
