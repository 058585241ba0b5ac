package transport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/channelkit/channel-sdk-go/pkg/logging"
)

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string

	tag := func(name string) Middleware {
		return MiddlewareFunc(func(next Connector) Connector {
			return &taggedConnector{next: next, name: name, order: &order}
		})
	}

	connector := ChainMiddleware(tag("outer"), tag("inner")).Wrap(NewScriptedConnector())
	_, err := connector.Open(context.Background(), "wss://example.com/streams", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("Expected outer before inner, got %v", order)
	}
}

type taggedConnector struct {
	next  Connector
	name  string
	order *[]string
}

func (c *taggedConnector) Name() string { return c.next.Name() }

func (c *taggedConnector) Open(ctx context.Context, endpoint string, opts *ConnectOptions) (Connection, error) {
	*c.order = append(*c.order, c.name)
	return c.next.Open(ctx, endpoint, opts)
}

func TestLoggingMiddlewareLogsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, &logging.TextFormatter{DisableColors: true, DisableTimestamp: true})

	scripted := NewScriptedConnector()
	connector := NewLoggingMiddleware(logger).Wrap(scripted)

	conn, err := connector.Open(context.Background(), "wss://example.com/streams", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	scripted.Conn(0).PushText("hello")
	if _, err := conn.NextFrame(context.Background()); err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if err := conn.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "connection established") {
		t.Errorf("Expected open log, got %q", out)
	}
	if !strings.Contains(out, "frames_received=1") {
		t.Errorf("Expected close log with frame count, got %q", out)
	}
}

func TestLoggingMiddlewareLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, &logging.TextFormatter{DisableColors: true, DisableTimestamp: true})

	scripted := NewScriptedConnector()
	scripted.FailNext(errors.New("dial refused"))
	connector := NewLoggingMiddleware(logger).Wrap(scripted)

	if _, err := connector.Open(context.Background(), "wss://example.com/streams", nil); err == nil {
		t.Fatal("Expected Open to fail")
	}

	if !strings.Contains(buf.String(), "connection attempt failed") {
		t.Errorf("Expected failure log, got %q", buf.String())
	}
}

func TestObservabilityMiddlewareRecordsMetrics(t *testing.T) {
	recorder := &recordingMetrics{}
	scripted := NewScriptedConnector()
	scripted.FailNext(errors.New("refused"))
	connector := NewObservabilityMiddleware(recorder, nil).Wrap(scripted)

	if _, err := connector.Open(context.Background(), "wss://a.example.com", nil); err == nil {
		t.Fatal("Expected first Open to fail")
	}

	conn, err := connector.Open(context.Background(), "wss://a.example.com", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	scripted.LastConn().PushText("data")
	if _, err := conn.NextFrame(context.Background()); err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	conn.Close(context.Background())

	if recorder.attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", recorder.attempts)
	}
	if recorder.failures != 1 || recorder.successes != 1 {
		t.Errorf("Expected 1 failure and 1 success, got %d/%d", recorder.failures, recorder.successes)
	}
	if recorder.frames != 1 || recorder.frameBytes != 4 {
		t.Errorf("Expected 1 frame of 4 bytes, got %d frames %d bytes", recorder.frames, recorder.frameBytes)
	}
	if recorder.closes != 1 {
		t.Errorf("Expected 1 close, got %d", recorder.closes)
	}
}

type recordingMetrics struct {
	attempts   int
	successes  int
	failures   int
	frames     int
	frameBytes int
	closes     int
}

func (r *recordingMetrics) RecordConnectAttempt(string)                { r.attempts++ }
func (r *recordingMetrics) RecordConnectSuccess(string, time.Duration) { r.successes++ }
func (r *recordingMetrics) RecordConnectFailure(string)                { r.failures++ }
func (r *recordingMetrics) RecordFrameReceived(_ string, bytes int)    { r.frames++; r.frameBytes += bytes }
func (r *recordingMetrics) RecordConnectionClosed(string)              { r.closes++ }
