package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MetricsRecorder receives connection-level measurements from the
// observability middleware. The observability package provides the
// Prometheus-backed implementation.
type MetricsRecorder interface {
	RecordConnectAttempt(endpoint string)
	RecordConnectSuccess(endpoint string, elapsed time.Duration)
	RecordConnectFailure(endpoint string)
	RecordFrameReceived(endpoint string, bytes int)
	RecordConnectionClosed(endpoint string)
}

// ObservabilityMiddleware adds metrics and tracing to a connector
type ObservabilityMiddleware struct {
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// NewObservabilityMiddleware creates middleware that records connection
// metrics and emits a span per connection attempt. Either argument may be
// nil to disable that signal.
func NewObservabilityMiddleware(metrics MetricsRecorder, tracer trace.Tracer) Middleware {
	om := &ObservabilityMiddleware{
		metrics: metrics,
		tracer:  tracer,
	}
	return MiddlewareFunc(func(connector Connector) Connector {
		return &observabilityConnector{next: connector, middleware: om}
	})
}

type observabilityConnector struct {
	next       Connector
	middleware *ObservabilityMiddleware
}

func (c *observabilityConnector) Name() string {
	return c.next.Name()
}

func (c *observabilityConnector) Open(ctx context.Context, endpoint string, opts *ConnectOptions) (Connection, error) {
	om := c.middleware

	var span trace.Span
	if om.tracer != nil {
		ctx, span = om.tracer.Start(ctx, "channel.connect",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("channel.endpoint", endpoint),
				attribute.String("channel.connector", c.next.Name()),
			),
		)
		defer span.End()
	}

	if om.metrics != nil {
		om.metrics.RecordConnectAttempt(endpoint)
	}

	start := time.Now()
	conn, err := c.next.Open(ctx, endpoint, opts)
	elapsed := time.Since(start)

	if err != nil {
		if om.metrics != nil {
			om.metrics.RecordConnectFailure(endpoint)
		}
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	if om.metrics != nil {
		om.metrics.RecordConnectSuccess(endpoint, elapsed)
	}
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	return &observabilityConnection{Connection: conn, metrics: om.metrics}, nil
}

type observabilityConnection struct {
	Connection
	metrics MetricsRecorder
}

func (c *observabilityConnection) NextFrame(ctx context.Context) (Frame, error) {
	frame, err := c.Connection.NextFrame(ctx)
	if err == nil && c.metrics != nil {
		c.metrics.RecordFrameReceived(c.Endpoint(), len(frame.Data))
	}
	return frame, err
}

func (c *observabilityConnection) Close(ctx context.Context) error {
	err := c.Connection.Close(ctx)
	if c.metrics != nil {
		c.metrics.RecordConnectionClosed(c.Endpoint())
	}
	return err
}
