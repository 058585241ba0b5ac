// Package channel implements a long-lived streaming session that survives
// transport failures. A Channel owns one background connection loop and one
// message buffer; the caller starts it against an endpoint, receives
// server-pushed messages in order, may retarget the live session to a new
// endpoint, and tears everything down deterministically with Close.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
	"github.com/channelkit/channel-sdk-go/pkg/logging"
	"github.com/channelkit/channel-sdk-go/pkg/protocol"
	"github.com/channelkit/channel-sdk-go/pkg/transport"
)

// Metrics is the subset of measurements the channel records. The
// observability package's MetricsProvider satisfies it; a nil config field
// disables recording.
type Metrics interface {
	RecordChannelState(state string)
	RecordReconnect(endpoint string)
	RecordMessage(endpoint string, decodeFailed bool)
	RecordBufferDepth(depth int)
	RecordUpdate(outcome string)
	RecordChannelOpened()
	RecordChannelClosed()
}

type noopMetrics struct{}

func (noopMetrics) RecordChannelState(string)  {}
func (noopMetrics) RecordReconnect(string)     {}
func (noopMetrics) RecordMessage(string, bool) {}
func (noopMetrics) RecordBufferDepth(int)      {}
func (noopMetrics) RecordUpdate(string)        {}
func (noopMetrics) RecordChannelOpened()       {}
func (noopMetrics) RecordChannelClosed()       {}

// Config configures a Channel
type Config struct {
	// Connector dials endpoints; defaults to the WebSocket connector
	Connector transport.Connector

	// ConnectOptions are passed to every connection attempt
	ConnectOptions *transport.ConnectOptions

	// Decoder turns frames into messages; defaults to JSON
	Decoder protocol.Decoder

	// Reconnect enables automatic reconnection after a lost connection.
	// When false, the first failure after Start terminates the channel.
	Reconnect bool

	// MaxReconnectAttempts bounds consecutive failed attempts; zero means
	// retry forever
	MaxReconnectAttempts int

	// ConnectTimeout bounds how long Start and Update wait for first
	// connectivity
	ConnectTimeout time.Duration

	// CloseTimeout bounds how long Close waits for the loop to stop
	CloseTimeout time.Duration

	// Backoff controls the delay between reconnect attempts
	Backoff BackoffConfig

	// Logger receives lifecycle and frame events; defaults to a no-op
	Logger logging.Logger

	// Metrics receives channel measurements; nil disables recording
	Metrics Metrics
}

// DefaultConfig returns a config with reconnection enabled and the default
// backoff policy
func DefaultConfig() *Config {
	return &Config{
		Connector:      transport.NewWebSocketConnector(nil),
		ConnectOptions: transport.DefaultConnectOptions(),
		Decoder:        protocol.NewJSONDecoder(),
		Reconnect:      true,
		ConnectTimeout: 30 * time.Second,
		CloseTimeout:   10 * time.Second,
		Backoff:        DefaultBackoffConfig(),
	}
}

// Channel is the public streaming session object. All methods are safe for
// concurrent use, with the single-consumer restriction on Recv.
type Channel struct {
	id      string
	config  *Config
	logger  logging.Logger
	metrics Metrics
	buffer  *Buffer
	epochs  atomic.Uint64

	mu         sync.Mutex
	state      State
	endpoint   string
	loop       *connLoop
	gen        uint64
	done       bool
	termErr    error
	closeCause error
	opened     bool
}

// New creates a Channel from config, with options applied on top. Nil or
// partially filled configs are completed with defaults.
func New(config *Config, opts ...Option) *Channel {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	} else {
		copied := *config
		config = &copied
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.Connector == nil {
		config.Connector = defaults.Connector
	}
	if config.ConnectOptions == nil {
		config.ConnectOptions = defaults.ConnectOptions
	}
	if config.Decoder == nil {
		config.Decoder = defaults.Decoder
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.CloseTimeout == 0 {
		config.CloseTimeout = defaults.CloseTimeout
	}
	if config.Backoff == (BackoffConfig{}) {
		config.Backoff = defaults.Backoff
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	var metrics Metrics = noopMetrics{}
	if config.Metrics != nil {
		metrics = config.Metrics
	}

	id := uuid.NewString()
	return &Channel{
		id:      id,
		config:  config,
		logger:  logger.WithFields(logging.String("channel_id", id)),
		metrics: metrics,
		buffer:  newBuffer(),
		state:   StateClosed,
	}
}

// ID returns the channel's unique identifier
func (c *Channel) ID() string {
	return c.id
}

// State returns the current lifecycle state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the current target endpoint
func (c *Channel) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// BufferLen returns the number of undelivered messages
func (c *Channel) BufferLen() int {
	return c.buffer.Len()
}

// Start connects the channel to endpoint and blocks until the first
// connection succeeds, the connect timeout elapses, or ctx is cancelled.
// Starting an already-open channel is a no-op; starting during another
// control operation fails with OperationInProgress.
func (c *Channel) Start(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.done {
		cause := c.closeCause
		c.mu.Unlock()
		return c.withChannelContext(cherrors.ChannelClosed(cause))
	}
	switch c.state {
	case StateOpen, StateReconnecting:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateUpdating, StateClosing:
		c.mu.Unlock()
		return c.withChannelContext(cherrors.OperationInProgress("start"))
	}
	c.state = StateConnecting
	c.endpoint = endpoint
	c.mu.Unlock()

	c.metrics.RecordChannelState(StateConnecting.String())
	c.logger.Info("starting channel",
		logging.String("operation", "start"),
		logging.String("endpoint", endpoint),
	)

	if err := c.connectLoop(ctx, endpoint); err != nil {
		c.terminate(nil)
		return c.withChannelContext(err)
	}

	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	c.metrics.RecordChannelOpened()
	return nil
}

// Recv blocks until a message is available or the channel closes. At most
// one caller may be blocked at a time; a second concurrent caller fails
// fast with ConcurrentAccess. After a terminal failure the next Recv
// surfaces that error exactly once, then ChannelClosed.
func (c *Channel) Recv(ctx context.Context) (*protocol.Message, error) {
	c.mu.Lock()
	if c.state == StateClosed && !c.done {
		// Never started
		c.mu.Unlock()
		return nil, c.withChannelContext(cherrors.ChannelClosed(nil))
	}
	c.mu.Unlock()

	msg, err := c.buffer.Pop(ctx)
	if err == nil {
		c.metrics.RecordBufferDepth(c.buffer.Len())
		return msg, nil
	}

	if errors.Is(err, errBufferClosed) {
		c.mu.Lock()
		if c.termErr != nil {
			terminal := c.termErr
			c.termErr = nil
			c.mu.Unlock()
			return nil, terminal
		}
		cause := c.closeCause
		c.mu.Unlock()
		return nil, c.withChannelContext(cherrors.ChannelClosed(cause))
	}

	// ConcurrentAccess or the caller's context
	return nil, err
}

// Update retargets the live session to newEndpoint without discarding
// buffered messages. On failure with rollback enabled, the previous
// endpoint is re-connected and the distinguished UpdateRolledBack outcome
// is returned while the channel stays open; without rollback the channel
// closes and the failure also surfaces to a pending Recv.
func (c *Channel) Update(ctx context.Context, newEndpoint string, rollback bool) error {
	c.mu.Lock()
	if c.done || c.state == StateClosed || c.state == StateClosing {
		cause := c.closeCause
		c.mu.Unlock()
		return c.withChannelContext(cherrors.ChannelClosed(cause))
	}
	if c.state != StateOpen && c.state != StateReconnecting {
		c.mu.Unlock()
		return c.withChannelContext(cherrors.OperationInProgress("update"))
	}
	c.state = StateUpdating
	oldLoop := c.loop
	oldEndpoint := c.endpoint
	c.mu.Unlock()

	c.metrics.RecordChannelState(StateUpdating.String())
	c.logger.Info("updating endpoint",
		logging.String("operation", "update"),
		logging.String("endpoint", oldEndpoint),
		logging.String("new_endpoint", newEndpoint),
		logging.Bool("rollback", rollback),
	)

	// Tear down the current epoch in place; the buffer is untouched.
	c.stopLoop(oldLoop)

	err := c.connectLoop(ctx, newEndpoint)
	if err == nil {
		c.metrics.RecordUpdate("success")
		return nil
	}

	if !rollback {
		updateErr := c.withChannelContext(cherrors.UpdateFailed(oldEndpoint, newEndpoint, err))
		c.terminate(updateErr)
		c.metrics.RecordUpdate("failed")
		return updateErr
	}

	c.logger.WithError(err).Warn("update failed, rolling back",
		logging.String("operation", "update"),
		logging.String("endpoint", oldEndpoint),
		logging.String("new_endpoint", newEndpoint),
	)

	if rbErr := c.connectLoop(ctx, oldEndpoint); rbErr != nil {
		updateErr := c.withChannelContext(cherrors.UpdateFailed(oldEndpoint, newEndpoint, rbErr))
		c.terminate(updateErr)
		c.metrics.RecordUpdate("failed")
		return updateErr
	}

	c.metrics.RecordUpdate("rolled_back")
	return c.withChannelContext(cherrors.UpdateRolledBack(oldEndpoint, newEndpoint, err))
}

// Close tears the channel down from any state. It is idempotent and always
// succeeds from the caller's perspective; a consumer blocked in Recv is
// released immediately with ChannelClosed, and teardown errors are attached
// to that outcome rather than returned here.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.done || c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	loop := c.loop
	wasOpened := c.opened
	c.mu.Unlock()

	c.metrics.RecordChannelState(StateClosing.String())
	c.logger.Info("closing channel", logging.String("operation", "close"))

	// Release a blocked consumer before waiting on loop teardown
	c.buffer.Close()

	var teardownErr error
	if loop != nil {
		loop.cancel()
		select {
		case <-loop.done:
		case <-time.After(c.config.CloseTimeout):
			teardownErr = cherrors.NewErrorf(
				cherrors.CodeChannelClosed,
				cherrors.CategoryTimeout,
				cherrors.SeverityWarning,
				"connection loop did not stop within %s", c.config.CloseTimeout,
			)
		case <-ctx.Done():
			teardownErr = ctx.Err()
		}
	}

	c.mu.Lock()
	c.state = StateClosed
	c.done = true
	c.loop = nil
	if teardownErr != nil && c.closeCause == nil {
		c.closeCause = teardownErr
	}
	c.mu.Unlock()

	c.metrics.RecordChannelState(StateClosed.String())
	if wasOpened {
		c.metrics.RecordChannelClosed()
	}
	return nil
}

// connectLoop starts a new connection loop for endpoint and waits for its
// first outcome, bounded by ConnectTimeout and ctx. On success the loop
// becomes the channel's active loop and the state moves to OPEN.
func (c *Channel) connectLoop(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	loop := c.newLoop(gen, endpoint)
	c.loop = loop
	c.mu.Unlock()

	go loop.run()

	timer := time.NewTimer(c.config.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-loop.ready:
		if err != nil {
			c.stopLoop(loop)
			return err
		}
	case <-timer.C:
		c.stopLoop(loop)
		return cherrors.ConnectTimeout(c.config.Connector.Name(), endpoint, c.config.ConnectTimeout)
	case <-ctx.Done():
		c.stopLoop(loop)
		return ctx.Err()
	}

	c.mu.Lock()
	if c.gen != gen || c.done {
		// Closed (or replaced) while we were connecting; the new epoch
		// must not outlive the channel.
		cause := c.closeCause
		c.mu.Unlock()
		c.stopLoop(loop)
		return cherrors.ChannelClosed(cause)
	}
	c.endpoint = endpoint
	c.state = StateOpen
	c.mu.Unlock()

	c.metrics.RecordChannelState(StateOpen.String())
	return nil
}

// newLoop builds a connection loop bound to the given generation; callers
// hold the state lock
func (c *Channel) newLoop(gen uint64, endpoint string) *connLoop {
	loopCtx, cancel := context.WithCancel(context.Background())
	return &connLoop{
		gen:            gen,
		endpoint:       endpoint,
		connector:      c.config.Connector,
		opts:           c.config.ConnectOptions,
		decoder:        c.config.Decoder,
		buffer:         c.buffer,
		backoff:        c.config.Backoff,
		reconnect:      c.config.Reconnect,
		maxAttempts:    c.config.MaxReconnectAttempts,
		epochs:         &c.epochs,
		logger:         c.logger.WithFields(logging.String("component", "connloop")),
		metrics:        c.metrics,
		ctx:            loopCtx,
		cancel:         cancel,
		ready:          make(chan error, 1),
		done:           make(chan struct{}),
		onOpen:         c.handleLoopOpen,
		onReconnecting: c.handleLoopReconnecting,
		onTerminal:     c.handleLoopTerminal,
	}
}

// stopLoop cancels a loop and waits for it to exit
func (c *Channel) stopLoop(loop *connLoop) {
	if loop == nil {
		return
	}
	loop.cancel()
	<-loop.done
}

// handleLoopOpen moves the channel to OPEN after a successful (re)connect.
// Stale generations — loops already replaced by update or close — are
// ignored.
func (c *Channel) handleLoopOpen(gen uint64, endpoint string, epoch uint64) {
	c.mu.Lock()
	if gen != c.gen || c.done {
		c.mu.Unlock()
		return
	}
	transitioned := false
	if c.state == StateConnecting || c.state == StateReconnecting {
		c.state = StateOpen
		c.endpoint = endpoint
		transitioned = true
	}
	c.mu.Unlock()

	if transitioned {
		c.metrics.RecordChannelState(StateOpen.String())
	}
}

// handleLoopReconnecting moves the channel to RECONNECTING after a failed
// attempt or lost connection while retries remain
func (c *Channel) handleLoopReconnecting(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.done {
		c.mu.Unlock()
		return
	}
	transitioned := false
	if c.state == StateOpen || c.state == StateConnecting {
		c.state = StateReconnecting
		transitioned = true
	}
	c.mu.Unlock()

	if transitioned {
		c.metrics.RecordChannelState(StateReconnecting.String())
	}
}

// handleLoopTerminal closes the channel when the loop gives up after Start
// has already returned; the error surfaces on the next Recv exactly once
func (c *Channel) handleLoopTerminal(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.done {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.WithError(err).Error("channel terminated",
		logging.String("endpoint", c.Endpoint()),
	)
	c.terminate(c.withChannelContext(err))
}

// terminate moves the channel to its terminal CLOSED state. A non-nil
// termErr is surfaced by the next Recv exactly once.
func (c *Channel) terminate(termErr error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.done = true
	c.loop = nil
	c.termErr = termErr
	wasOpened := c.opened
	c.mu.Unlock()

	c.buffer.Close()
	c.metrics.RecordChannelState(StateClosed.String())
	if wasOpened {
		c.metrics.RecordChannelClosed()
	}
}

// withChannelContext stamps a structured error with this channel's identity
func (c *Channel) withChannelContext(err error) error {
	chErr, ok := cherrors.AsChannelError(err)
	if !ok {
		return err
	}
	ctx := chErr.Context()
	if ctx == nil {
		ctx = &cherrors.Context{}
	}
	stamped := *ctx
	stamped.ChannelID = c.id
	if stamped.Endpoint == "" {
		stamped.Endpoint = c.Endpoint()
	}
	return chErr.WithContext(&stamped)
}
