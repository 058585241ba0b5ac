package transport

import (
	"context"
	"time"

	"github.com/channelkit/channel-sdk-go/pkg/logging"
)

// Middleware wraps a Connector to add functionality like logging or
// observability without changing its behavior.
type Middleware interface {
	// Wrap wraps the given connector with middleware functionality
	Wrap(connector Connector) Connector
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Connector) Connector

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(c Connector) Connector {
	return f(c)
}

// ChainMiddleware chains multiple middleware together
func ChainMiddleware(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(connector Connector) Connector {
		// Apply middleware in reverse order so the first middleware is the outermost
		for i := len(middleware) - 1; i >= 0; i-- {
			connector = middleware[i].Wrap(connector)
		}
		return connector
	})
}

// NewLoggingMiddleware creates middleware that logs connection lifecycle
// events and per-connection frame traffic at debug level.
func NewLoggingMiddleware(logger logging.Logger) Middleware {
	if logger == nil {
		logger = logging.Noop()
	}
	return MiddlewareFunc(func(connector Connector) Connector {
		return &loggingConnector{
			next:   connector,
			logger: logger.WithFields(logging.String("component", "transport")),
		}
	})
}

type loggingConnector struct {
	next   Connector
	logger logging.Logger
}

func (c *loggingConnector) Name() string {
	return c.next.Name()
}

func (c *loggingConnector) Open(ctx context.Context, endpoint string, opts *ConnectOptions) (Connection, error) {
	start := time.Now()
	conn, err := c.next.Open(ctx, endpoint, opts)
	if err != nil {
		c.logger.WithError(err).Warn("connection attempt failed",
			logging.String("operation", "open"),
			logging.String("endpoint", endpoint),
			logging.String("connector", c.next.Name()),
		)
		return nil, err
	}

	c.logger.Info("connection established",
		logging.String("operation", "open"),
		logging.String("endpoint", endpoint),
		logging.String("connector", c.next.Name()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return &loggingConnection{Connection: conn, logger: c.logger}, nil
}

type loggingConnection struct {
	Connection
	logger logging.Logger
	frames int
}

func (c *loggingConnection) NextFrame(ctx context.Context) (Frame, error) {
	frame, err := c.Connection.NextFrame(ctx)
	if err != nil {
		return frame, err
	}
	c.frames++
	c.logger.Debug("frame received",
		logging.String("endpoint", c.Endpoint()),
		logging.String("frame_type", frame.Type.String()),
		logging.Int("bytes", len(frame.Data)),
	)
	return frame, nil
}

func (c *loggingConnection) Close(ctx context.Context) error {
	err := c.Connection.Close(ctx)
	c.logger.Info("connection closed",
		logging.String("operation", "close"),
		logging.String("endpoint", c.Endpoint()),
		logging.Int("frames_received", c.frames),
	)
	return err
}
