package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) MetricsProvider {
	t.Helper()
	provider, err := NewMetricsProvider(MetricsConfig{
		ServiceName: "test",
		Registerer:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return provider
}

func TestMetricsProviderRecords(t *testing.T) {
	provider := newTestProvider(t)

	// None of these should panic or collide
	provider.RecordConnectAttempt("wss://a.example.com/streams")
	provider.RecordConnectSuccess("wss://a.example.com/streams", 12*time.Millisecond)
	provider.RecordConnectFailure("wss://a.example.com/streams")
	provider.RecordFrameReceived("wss://a.example.com/streams", 128)
	provider.RecordReconnect("wss://a.example.com/streams")
	provider.RecordMessage("wss://a.example.com/streams", false)
	provider.RecordMessage("wss://a.example.com/streams", true)
	provider.RecordBufferDepth(7)
	provider.RecordUpdate("rolled_back")
	provider.RecordChannelOpened()
	provider.RecordChannelClosed()
}

func TestMetricsProviderStateGaugeIsExclusive(t *testing.T) {
	registry := prometheus.NewRegistry()
	provider, err := NewMetricsProvider(MetricsConfig{Registerer: registry})
	require.NoError(t, err)

	provider.RecordChannelState("open")
	provider.RecordChannelState("reconnecting")

	families, err := registry.Gather()
	require.NoError(t, err)

	var active []string
	for _, family := range families {
		if family.GetName() != "channel_state" {
			continue
		}
		for _, metric := range family.GetMetric() {
			if metric.GetGauge().GetValue() == 1 {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "state" {
						active = append(active, label.GetValue())
					}
				}
			}
		}
	}

	assert.Equal(t, []string{"reconnecting"}, active)
}

func TestDuplicateRegistrationTolerated(t *testing.T) {
	registry := prometheus.NewRegistry()

	_, err := NewMetricsProvider(MetricsConfig{Registerer: registry})
	require.NoError(t, err)

	// A second provider on the same registry must not fail
	_, err = NewMetricsProvider(MetricsConfig{Registerer: registry})
	require.NoError(t, err)
}

func TestTracingProviderNoopExporter(t *testing.T) {
	provider, err := NewTracingProvider(TracingConfig{
		ServiceName:  "test",
		ExporterType: ExporterTypeNoop,
	})
	require.NoError(t, err)
	require.NotNil(t, provider.Tracer())

	_, span := provider.StartOperationSpan(context.Background(), "recv", 0)
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestTracingProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "zipkin"})
	assert.Error(t, err)
}
