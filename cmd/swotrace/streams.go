package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"swotrace/internal/config"
	"swotrace/internal/demux"
	"swotrace/internal/metrics"
	"swotrace/internal/stream"
	"swotrace/pkg/outputlog"
)

// sinkSet holds the shared sinks a channel can select by name. Nil entries
// are unavailable in the current command and are skipped.
type sinkSet struct {
	console stream.Sink
	echo    stream.Sink
	web     func(channel uint8) stream.Sink
	record  *outputlog.Writer
}

func (s sinkSet) forChannel(ch config.Channel) []stream.Sink {
	var sinks []stream.Sink
	for _, name := range ch.Sinks {
		switch name {
		case config.SinkConsole:
			if s.console != nil {
				sinks = append(sinks, s.console)
			}
		case config.SinkEcho:
			if s.echo != nil {
				sinks = append(sinks, s.echo)
			}
		case config.SinkWeb:
			if s.web != nil {
				sinks = append(sinks, s.web(uint8(ch.ID)))
			}
		case config.SinkRecord:
			if s.record != nil {
				name := outputlog.StreamName(uint8(ch.ID))
				record := s.record
				sinks = append(sinks, stream.SinkFunc(func(line string) error {
					return record.WriteLine(name, line)
				}))
			}
		}
	}
	return sinks
}

// buildDemux registers one stream per configured channel.
func buildDemux(cfg *config.Config, sinks sinkSet, m *metrics.Metrics) *demux.Demux {
	d := demux.New()
	if m != nil {
		d.SetObserver(m)
	}
	for _, ch := range cfg.Channels {
		opts := []stream.Option{
			stream.WithPrefix(ch.Prefix),
			stream.WithSinks(sinks.forChannel(ch)...),
		}
		if m != nil {
			opts = append(opts, stream.WithOverflowHook(m.Overflow), stream.WithLineHook(m.Line))
		}
		d.Register(stream.New(uint8(ch.ID), opts...))
		slog.Debug("Registered channel", "channel", ch.ID, "prefix", ch.Prefix, "sinks", ch.Sinks)
	}
	return d
}

// openRecord opens the output log for appending.
func openRecord(path string) (*outputlog.Writer, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open record file: %w", err)
	}
	w := outputlog.NewWriter(f)
	closeFn := func() error {
		werr := w.Close()
		ferr := f.Close()
		if werr != nil {
			return werr
		}
		return ferr
	}
	return w, closeFn, nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}
