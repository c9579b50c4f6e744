package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swotrace/internal/config"
	"swotrace/internal/metrics"
	"swotrace/internal/stream"
	"swotrace/pkg/itm"
	"swotrace/pkg/outputlog"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines []string
}

func (r *recorder) WriteLine(line string) error {
	r.lines = append(r.lines, line)
	return nil
}

func capture(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	var err error
	buf, err = itm.AppendText(buf, 0, "boot ok\n")
	require.NoError(t, err)
	buf = append(buf, 0x00, 0x00, 0x00, 0x80)
	buf, err = itm.AppendPacket(buf, 1, []byte("vbat"))
	require.NoError(t, err)
	buf, err = itm.AppendPacket(buf, 5, []byte("xx"))
	require.NoError(t, err)
	buf, err = itm.AppendText(buf, 1, " low\n")
	require.NoError(t, err)
	buf, err = itm.AppendText(buf, 2, "fault\n")
	require.NoError(t, err)
	return buf
}

func TestDecodeStream_ChunkSizesAgree(t *testing.T) {
	raw := capture(t)
	want := "boot ok\nWARNING: vbat low\nERROR: fault\n"

	for _, size := range []int{1, 2, 3, 5, 7, 1024} {
		var out bytes.Buffer
		d := buildDemuxForDecode(config.Default(), sinkSet{console: stream.NewConsoleSink(&out)})

		require.NoError(t, decodeStream(bytes.NewReader(raw), d, size))
		require.Equal(t, want, out.String(), "chunk size %d", size)
	}
}

func TestDecodeStream_InvalidChunkSize(t *testing.T) {
	d := buildDemuxForDecode(config.Default(), sinkSet{})
	require.Error(t, decodeStream(bytes.NewReader(nil), d, 0))
}

func TestBuildDemux_SelectsSinksPerChannel(t *testing.T) {
	console := &recorder{}
	echo := &recorder{}
	web := map[uint8]*recorder{}
	sinks := sinkSet{
		console: console,
		echo:    echo,
		web: func(channel uint8) stream.Sink {
			web[channel] = &recorder{}
			return web[channel]
		},
	}
	cfg := config.Default()
	cfg.Channels = append(cfg.Channels, config.Channel{ID: 3, Prefix: "DBG ", Sinks: []string{config.SinkWeb, config.SinkRecord}})

	d := buildDemux(cfg, sinks, metrics.New())
	d.Ingest(capture(t))
	raw, err := itm.AppendText(nil, 3, "dbg\n")
	require.NoError(t, err)
	d.Ingest(raw)

	require.Equal(t, []string{"boot ok", "WARNING: vbat low", "ERROR: fault"}, console.lines)
	require.Equal(t, []string{"boot ok", "ERROR: fault"}, echo.lines)
	require.Equal(t, []string{"DBG dbg"}, web[3].lines)
}

func TestBuildDemux_RecordSink(t *testing.T) {
	var buf bytes.Buffer
	w := outputlog.NewWriter(&buf)
	cfg := config.Default()
	cfg.Channels = []config.Channel{{ID: 2, Prefix: "E: ", Sinks: []string{config.SinkRecord}}}

	d := buildDemux(cfg, sinkSet{record: w}, nil)
	d.Ingest(capture(t))
	require.NoError(t, w.Close())

	chunks, err := outputlog.NewReader(&buf).All()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "ch2", chunks[0].Stream)
	require.Equal(t, "E: fault", string(chunks[0].Line))
}

func TestShowRecord(t *testing.T) {
	ts := time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)
	var log bytes.Buffer
	log.Write(outputlog.FormatChunk(outputlog.Chunk{Stream: "ch0", Timestamp: ts, Line: []byte("hello")}))
	log.Write(outputlog.FormatChunk(outputlog.Chunk{Stream: "ch1", Timestamp: ts, Line: []byte("WARNING: hot")}))

	var filtered bytes.Buffer
	require.NoError(t, showRecord(bytes.NewReader(log.Bytes()), &filtered, 1))
	require.Equal(t, "WARNING: hot\n", filtered.String())

	var all bytes.Buffer
	require.NoError(t, showRecord(bytes.NewReader(log.Bytes()), &all, -1))
	require.Equal(t, "2025-01-07T12:00:00Z ch0 hello\n2025-01-07T12:00:00Z ch1 WARNING: hot\n", all.String())
}

func TestShowRecord_Corrupt(t *testing.T) {
	require.Error(t, showRecord(strings.NewReader("ch0 nope"), &bytes.Buffer{}, -1))
}

func TestParseLevel(t *testing.T) {
	_, err := parseLevel("debug")
	require.NoError(t, err)
	_, err = parseLevel("WARNING")
	require.NoError(t, err)
	_, err = parseLevel("loud")
	require.Error(t, err)
}

func TestCommands_EncodeThenDecode(t *testing.T) {
	var encoded bytes.Buffer
	rootCmd.SetOut(&encoded)
	rootCmd.SetArgs([]string{"encode", "--channel", "1", "hi", "there"})
	require.NoError(t, rootCmd.Execute())
	require.Equal(t, []byte{0x09, 'h', 0x09, 'i', 0x09, ' ', 0x09, 't'}, encoded.Bytes()[:8])

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, encoded.Bytes(), 0o600))

	var decoded bytes.Buffer
	rootCmd.SetOut(&decoded)
	rootCmd.SetArgs([]string{"decode", "--chunk-size", "3", path})
	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "WARNING: hi there\n", decoded.String())
}

func TestCommands_DecodeRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[channel]]\nid = 40\n"), 0o600))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"decode", "--config", path, os.DevNull})
	err := rootCmd.Execute()
	require.ErrorIs(t, err, config.ErrInvalidChannel)

	configPath = ""
}

func TestRootCmd_StoresParsedLevel(t *testing.T) {
	t.Cleanup(func() {
		rootCmd.SetArgs([]string{"encode", "--log-level", "info", "x"})
		rootCmd.SetOut(&bytes.Buffer{})
		_ = rootCmd.Execute()
	})

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"encode", "--log-level", "debug", "x"})
	require.NoError(t, rootCmd.Execute())
	require.Equal(t, slog.LevelDebug, level)

	rootCmd.SetArgs([]string{"encode", "--log-level", "loud", "x"})
	require.Error(t, rootCmd.Execute())
}
