// ABOUTME: Prometheus metrics for voice sessions and the gateway server
// ABOUTME: Each Metrics owns its registry so tests and binaries never collide
package metrics

import (
	"net/http"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ voice.Recorder = (*Metrics)(nil)

// Metrics holds the collectors for one process
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	ConnectFailures *prometheus.CounterVec

	// Capture metrics
	FramesSent prometheus.Counter
	SendErrors prometheus.Counter

	// Playback metrics
	ChunksScheduled prometheus.Counter
	ChunksDropped   prometheus.Counter
	ScheduledAudio  prometheus.Counter
	Interruptions   prometheus.Counter
	BuffersStopped  prometheus.Counter

	// Gateway server metrics
	GatewayClients    prometheus.Gauge
	GatewayTurns      prometheus.Counter
	GatewayBargeIns   prometheus.Counter
	GatewayAudioBytes *prometheus.CounterVec
}

// New creates and registers every collector under namespace
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "resonate_voice"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently connected",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions that reached the connected state",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Connected sessions that ended, by how they ended",
		}, []string{"reason"}),
		ConnectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Failed connect attempts by category",
		}, []string{"category"}),

		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_sent_total",
			Help:      "Microphone frames handed to the transport",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_send_errors_total",
			Help:      "Microphone frames the transport refused",
		}),

		ChunksScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_scheduled_total",
			Help:      "Inbound audio chunks scheduled for playback",
		}),
		ChunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_dropped_total",
			Help:      "Inbound audio chunks dropped because they could not be decoded or scheduled",
		}),
		ScheduledAudio: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_scheduled_seconds_total",
			Help:      "Seconds of audio scheduled for playback",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Interruptions received from the agent",
		}),
		BuffersStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_buffers_stopped_total",
			Help:      "Scheduled buffers cancelled by interruptions",
		}),

		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_clients",
			Help:      "Clients connected to the gateway",
		}),
		GatewayTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_turns_total",
			Help:      "User turns answered by the gateway",
		}),
		GatewayBargeIns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_barge_ins_total",
			Help:      "Replies interrupted because the user spoke",
		}),
		GatewayAudioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_audio_bytes_total",
			Help:      "Audio payload bytes through the gateway",
		}, []string{"direction"}),
	}

	m.registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionsEnded,
		m.ConnectFailures,
		m.FramesSent,
		m.SendErrors,
		m.ChunksScheduled,
		m.ChunksDropped,
		m.ScheduledAudio,
		m.Interruptions,
		m.BuffersStopped,
		m.GatewayClients,
		m.GatewayTurns,
		m.GatewayBargeIns,
		m.GatewayAudioBytes,
	)

	return m
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted implements voice.Recorder
func (m *Metrics) SessionStarted() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionEnded implements voice.Recorder
func (m *Metrics) SessionEnded(state voice.State) {
	m.SessionsActive.Dec()
	reason := "disconnect"
	if state == voice.StateFailed {
		reason = "error"
	}
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// ConnectFailed implements voice.Recorder
func (m *Metrics) ConnectFailed(category string) {
	m.ConnectFailures.WithLabelValues(category).Inc()
}

// FrameSent implements voice.Recorder
func (m *Metrics) FrameSent() {
	m.FramesSent.Inc()
}

// SendFailed implements voice.Recorder
func (m *Metrics) SendFailed() {
	m.SendErrors.Inc()
}

// ChunkScheduled implements voice.Recorder
func (m *Metrics) ChunkScheduled(duration time.Duration) {
	m.ChunksScheduled.Inc()
	m.ScheduledAudio.Add(duration.Seconds())
}

// ChunkDropped implements voice.Recorder
func (m *Metrics) ChunkDropped() {
	m.ChunksDropped.Inc()
}

// Interrupted implements voice.Recorder
func (m *Metrics) Interrupted(stopped int) {
	m.Interruptions.Inc()
	m.BuffersStopped.Add(float64(stopped))
}
