package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Prometheus configuration
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsPort int    // Port for metrics server (default: 9090)

	// Metric options
	Namespace        string    // Prometheus namespace (default: channel)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for connect latency

	// Registerer overrides the default Prometheus registry; tests pass a
	// fresh registry here to avoid cross-test collisions
	Registerer prometheus.Registerer

	// Labels to add to all metrics
	ConstLabels prometheus.Labels
}

// MetricsProvider records channel measurements. It satisfies the transport
// package's MetricsRecorder so it plugs directly into the observability
// middleware.
type MetricsProvider interface {
	// Connection events
	RecordConnectAttempt(endpoint string)
	RecordConnectSuccess(endpoint string, elapsed time.Duration)
	RecordConnectFailure(endpoint string)
	RecordFrameReceived(endpoint string, bytes int)
	RecordConnectionClosed(endpoint string)
	RecordReconnect(endpoint string)

	// Channel events
	RecordMessage(endpoint string, decodeFailed bool)
	RecordBufferDepth(depth int)
	RecordChannelState(state string)
	RecordUpdate(outcome string)
	RecordChannelOpened()
	RecordChannelClosed()

	// Management
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus
type PrometheusMetricsProvider struct {
	config MetricsConfig
	server *http.Server

	// Connection metrics
	connectAttempts *prometheus.CounterVec
	connectFailures *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	reconnects      *prometheus.CounterVec
	framesReceived  *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec

	// Channel metrics
	messages       *prometheus.CounterVec
	bufferDepth    prometheus.Gauge
	channelState   *prometheus.GaugeVec
	updates        *prometheus.CounterVec
	activeChannels prometheus.Gauge
}

// channelStates is the full label set for the state gauge; on every
// transition the current state is set to 1 and the rest to 0
var channelStates = []string{"closed", "connecting", "open", "reconnecting", "updating", "closing"}

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (MetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "channel"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		// Default buckets for milliseconds
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		config.ConstLabels["environment"] = config.Environment
	}

	provider := &PrometheusMetricsProvider{config: config}
	provider.initializeMetrics()

	if err := provider.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return provider, nil
}

// initializeMetrics creates all metric collectors
func (p *PrometheusMetricsProvider) initializeMetrics() {
	p.connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "connect_attempts_total",
			Help:        "Total number of connection attempts",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint"},
	)

	p.connectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "connect_failures_total",
			Help:        "Total number of failed connection attempts",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint"},
	)

	p.connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "connect_duration_milliseconds",
			Help:        "Duration of successful connection handshakes in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint"},
	)

	p.reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total number of reconnect cycles after a lost connection",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint"},
	)

	p.framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "frames_received_total",
			Help:        "Total number of frames received",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint"},
	)

	p.frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "frame_bytes_received_total",
			Help:        "Total frame payload bytes received",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint"},
	)

	p.messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "messages_total",
			Help:        "Total messages delivered to the buffer by decode status",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"endpoint", "status"},
	)

	p.bufferDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "buffer_depth",
			Help:        "Current number of undelivered messages in the buffer",
			ConstLabels: p.config.ConstLabels,
		},
	)

	p.channelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "state",
			Help:        "Current channel lifecycle state (1 for the active state)",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"state"},
	)

	p.updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "updates_total",
			Help:        "Total endpoint updates by outcome",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"outcome"},
	)

	p.activeChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "active_channels",
			Help:        "Number of channels currently open",
			ConstLabels: p.config.ConstLabels,
		},
	)
}

// registerMetrics registers all metrics with Prometheus
func (p *PrometheusMetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.connectAttempts,
		p.connectFailures,
		p.connectDuration,
		p.reconnects,
		p.framesReceived,
		p.frameBytes,
		p.messages,
		p.bufferDepth,
		p.channelState,
		p.updates,
		p.activeChannels,
	}

	for _, collector := range collectors {
		if err := p.config.Registerer.Register(collector); err != nil {
			// Check if already registered
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	return nil
}

// RecordConnectAttempt records a connection attempt
func (p *PrometheusMetricsProvider) RecordConnectAttempt(endpoint string) {
	p.connectAttempts.WithLabelValues(endpoint).Inc()
}

// RecordConnectSuccess records a successful handshake
func (p *PrometheusMetricsProvider) RecordConnectSuccess(endpoint string, elapsed time.Duration) {
	p.connectDuration.WithLabelValues(endpoint).Observe(float64(elapsed.Milliseconds()))
}

// RecordConnectFailure records a failed connection attempt
func (p *PrometheusMetricsProvider) RecordConnectFailure(endpoint string) {
	p.connectFailures.WithLabelValues(endpoint).Inc()
}

// RecordFrameReceived records an inbound frame
func (p *PrometheusMetricsProvider) RecordFrameReceived(endpoint string, bytes int) {
	p.framesReceived.WithLabelValues(endpoint).Inc()
	p.frameBytes.WithLabelValues(endpoint).Add(float64(bytes))
}

// RecordConnectionClosed records an orderly connection shutdown
func (p *PrometheusMetricsProvider) RecordConnectionClosed(string) {
	// Connection teardown is visible through the state gauge; nothing to
	// count separately.
}

// RecordReconnect records the start of a reconnect cycle
func (p *PrometheusMetricsProvider) RecordReconnect(endpoint string) {
	p.reconnects.WithLabelValues(endpoint).Inc()
}

// RecordMessage records a decoded message entering the buffer
func (p *PrometheusMetricsProvider) RecordMessage(endpoint string, decodeFailed bool) {
	status := "ok"
	if decodeFailed {
		status = "decode_error"
	}
	p.messages.WithLabelValues(endpoint, status).Inc()
}

// RecordBufferDepth records the current buffer depth
func (p *PrometheusMetricsProvider) RecordBufferDepth(depth int) {
	p.bufferDepth.Set(float64(depth))
}

// RecordChannelState records a lifecycle state transition
func (p *PrometheusMetricsProvider) RecordChannelState(state string) {
	for _, s := range channelStates {
		p.channelState.WithLabelValues(s).Set(0)
	}
	p.channelState.WithLabelValues(state).Set(1)
}

// RecordUpdate records an endpoint update outcome (success, rolled_back, failed)
func (p *PrometheusMetricsProvider) RecordUpdate(outcome string) {
	p.updates.WithLabelValues(outcome).Inc()
}

// RecordChannelOpened increments the active channel gauge
func (p *PrometheusMetricsProvider) RecordChannelOpened() {
	p.activeChannels.Inc()
}

// RecordChannelClosed decrements the active channel gauge
func (p *PrometheusMetricsProvider) RecordChannelClosed() {
	p.activeChannels.Dec()
}

// Start starts the metrics HTTP server
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, promhttp.Handler())

	p.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", p.config.MetricsPort),
		Handler: mux,
	}

	go func() {
		_ = p.server.ListenAndServe()
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	if p.server != nil {
		return p.server.Shutdown(ctx)
	}
	return nil
}
