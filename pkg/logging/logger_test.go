package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableColors: true, DisableTimestamp: true})

	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Debug message should be filtered at Info level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Info message should be written at Info level")
	}

	logger.SetLevel(DebugLevel)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("Debug message should be written at Debug level")
	}
}

func TestTextFormatterHeader(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableColors: true, DisableTimestamp: true})

	logger.Info("epoch opened",
		String("channel_id", "ch-42"),
		String("component", "connloop"),
		String("operation", "connect"),
		Int("attempt", 3),
	)

	out := buf.String()
	if !strings.Contains(out, "[ch-42]") {
		t.Errorf("Expected channel id header, got %q", out)
	}
	if !strings.Contains(out, "connloop/connect:") {
		t.Errorf("Expected component/operation header, got %q", out)
	}
	if !strings.Contains(out, "attempt=3") {
		t.Errorf("Expected attempt field, got %q", out)
	}
	// Header fields must not repeat in the key=value tail
	if strings.Contains(out, "channel_id=") {
		t.Errorf("channel_id should not repeat in fields, got %q", out)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableColors: true, DisableTimestamp: true})

	child := logger.WithFields(String("endpoint", "wss://a.example.com"))
	child.Info("child")
	logger.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "endpoint=") {
		t.Error("Child line should carry the endpoint field")
	}
	if strings.Contains(lines[1], "endpoint=") {
		t.Error("Parent line should not carry the child's field")
	}
}

func TestWithErrorExtractsChannelErrorContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableColors: true, DisableTimestamp: true})

	err := cherrors.ConnectionLost("websocket", "wss://data.example.com/streams", 7, errors.New("eof")).
		WithContext(&cherrors.Context{
			ChannelID: "ch-9",
			Epoch:     7,
			Endpoint:  "wss://data.example.com/streams",
			Component: "connloop",
		})

	logger.WithError(err).Warn("epoch down")

	out := buf.String()
	if !strings.Contains(out, "[ch-9]") {
		t.Errorf("Expected channel id from error context, got %q", out)
	}
	if !strings.Contains(out, "epoch=7") {
		t.Errorf("Expected epoch field, got %q", out)
	}
	if !strings.Contains(out, "error_category=connection") {
		t.Errorf("Expected error category field, got %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("message received",
		String("channel_id", "ch-1"),
		ErrorField(errors.New("boom")),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if entry["level"] != "INFO" {
		t.Errorf("Unexpected level: %v", entry["level"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Errors should marshal as strings, got %v", entry["error"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected timestamp in JSON output")
	}
}

func TestNoopLoggerWritesNothing(t *testing.T) {
	logger := Noop()
	logger.Error("should vanish")
	// Nothing to assert on output; this mainly guards against panics and
	// verifies the level is above ErrorLevel.
	if logger.GetLevel() <= ErrorLevel {
		t.Error("Noop logger should filter all levels")
	}
}
