// Package metrics exposes decoder and stream counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"swotrace/internal/demux"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "swotrace"

// Metrics counts what flows through one demultiplexer. The zero value is
// not usable; call New.
type Metrics struct {
	registry *prometheus.Registry

	skippedBytes   prometheus.Counter
	packets        *prometheus.CounterVec
	payloadBytes   *prometheus.CounterVec
	droppedPackets *prometheus.CounterVec
	overflows      *prometheus.CounterVec
	lines          *prometheus.CounterVec
	traceMessages  prometheus.Counter
	invalidTrace   prometheus.Counter
}

var _ demux.Observer = &Metrics{}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		skippedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "itm",
			Name:      "skipped_bytes_total",
			Help:      "Bytes discarded while resynchronizing on headers that are not software source packets.",
		}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "itm",
			Name:      "packets_total",
			Help:      "Software source packets routed to a registered channel.",
		}, []string{"channel"}),
		payloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "itm",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes routed to a registered channel.",
		}, []string{"channel"}),
		droppedPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "itm",
			Name:      "dropped_packets_total",
			Help:      "Packets discarded because no stream is registered for their channel.",
		}, []string{"channel"}),
		overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "stream",
			Name:      "overflows_total",
			Help:      "Lines flushed because they reached the maximum line length.",
		}, []string{"channel"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "stream",
			Name:      "lines_total",
			Help:      "Lines emitted per channel.",
		}, []string{"channel"}),
		traceMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "tcl",
			Name:      "trace_messages_total",
			Help:      "Trace notifications received from the Tcl server.",
		}),
		invalidTrace: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "tcl",
			Name:      "invalid_trace_messages_total",
			Help:      "Trace notifications whose payload could not be decoded.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.skippedBytes,
		m.packets,
		m.payloadBytes,
		m.droppedPackets,
		m.overflows,
		m.lines,
		m.traceMessages,
		m.invalidTrace,
	)
	return m
}

func label(channel uint8) string {
	return strconv.Itoa(int(channel))
}

func (m *Metrics) BytesSkipped(n int) {
	m.skippedBytes.Add(float64(n))
}

func (m *Metrics) PacketRouted(channel uint8, size int) {
	m.packets.WithLabelValues(label(channel)).Inc()
	m.payloadBytes.WithLabelValues(label(channel)).Add(float64(size))
}

func (m *Metrics) PacketDropped(channel uint8, size int) {
	m.droppedPackets.WithLabelValues(label(channel)).Inc()
}

// Overflow matches the stream overflow hook.
func (m *Metrics) Overflow(channel uint8) {
	m.overflows.WithLabelValues(label(channel)).Inc()
}

// Line matches the stream line hook.
func (m *Metrics) Line(channel uint8) {
	m.lines.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) TraceMessage() {
	m.traceMessages.Inc()
}

func (m *Metrics) InvalidTrace() {
	m.invalidTrace.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
