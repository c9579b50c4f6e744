package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"swotrace/internal/demux"
	"swotrace/internal/stream"
	"swotrace/pkg/itm"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsDemuxEvents(t *testing.T) {
	m := New()
	d := demux.New()
	d.SetObserver(m)
	d.Register(stream.New(1, stream.WithLineHook(m.Line), stream.WithOverflowHook(m.Overflow)))

	trace, err := itm.AppendText([]byte{0x04, 0x00}, 1, "hi\n")
	require.NoError(t, err)
	trace, err = itm.AppendPacket(trace, 3, []byte("nope"))
	require.NoError(t, err)

	d.Ingest(trace)

	require.Equal(t, 2.0, testutil.ToFloat64(m.skippedBytes))
	require.Equal(t, 3.0, testutil.ToFloat64(m.packets.WithLabelValues("1")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.payloadBytes.WithLabelValues("1")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.droppedPackets.WithLabelValues("3")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.lines.WithLabelValues("1")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.overflows.WithLabelValues("1")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.TraceMessage()
	m.InvalidTrace()
	m.Overflow(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "swotrace_tcl_trace_messages_total 1")
	require.Contains(t, string(body), "swotrace_tcl_invalid_trace_messages_total 1")
	require.Contains(t, string(body), `swotrace_stream_overflows_total{channel="2"} 1`)
}
