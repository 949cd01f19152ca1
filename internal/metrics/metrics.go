// Package metrics holds the Prometheus collectors for the dashboard state
// layer. Collectors live on a private registry so tests can build as many
// as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every lobwatch collector.
type Registry struct {
	reg *prometheus.Registry

	FramesTotal     *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	BufferSnapshots prometheus.Gauge
	ControlRequests *prometheus.CounterVec
	WSClients       prometheus.Gauge
}

// New creates a Registry with the Go runtime and process collectors attached.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobwatch_frames_total",
				Help: "Frames accepted from the stream, by kind (history, tick).",
			},
			[]string{"kind"},
		),

		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobwatch_frames_dropped_total",
				Help: "Frames discarded without touching the buffer, by reason.",
			},
			[]string{"reason"},
		),

		BufferSnapshots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobwatch_buffer_snapshots",
				Help: "Snapshots currently held in the rolling buffer.",
			},
		),

		ControlRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobwatch_control_requests_total",
				Help: "Replay control requests sent to the backend, by command and result.",
			},
			[]string{"command", "result"},
		),

		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobwatch_ws_clients",
				Help: "Renderer WebSocket clients currently connected.",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.FramesTotal,
		r.FramesDropped,
		r.BufferSnapshots,
		r.ControlRequests,
		r.WSClients,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// FrameAccepted counts one accepted frame and records the buffer length after it.
func (r *Registry) FrameAccepted(kind string, bufferLen int) {
	if r == nil {
		return
	}
	r.FramesTotal.WithLabelValues(kind).Inc()
	r.BufferSnapshots.Set(float64(bufferLen))
}

// FrameDropped counts one discarded frame.
func (r *Registry) FrameDropped(reason string) {
	if r == nil {
		return
	}
	r.FramesDropped.WithLabelValues(reason).Inc()
}

// ControlRequest counts one replay control request.
func (r *Registry) ControlRequest(command string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.ControlRequests.WithLabelValues(command, result).Inc()
}

// ClientConnected adjusts the WebSocket client gauge by delta.
func (r *Registry) ClientConnected(delta int) {
	if r == nil {
		return
	}
	r.WSClients.Add(float64(delta))
}
