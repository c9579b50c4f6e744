// Package probe drives a trace session against an OpenOCD Tcl server: it
// enables SWO tracing and feeds every trace notification to a
// demultiplexer.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"swotrace/internal/demux"
	"swotrace/internal/tcl"
)

// TraceObserver counts trace notifications.
type TraceObserver interface {
	TraceMessage()
	InvalidTrace()
}

// Session owns the read side of a Tcl connection. Ingest is only ever
// called from the goroutine running Run.
type Session struct {
	client   *tcl.Client
	demux    *demux.Demux
	observer TraceObserver
}

func NewSession(client *tcl.Client, d *demux.Demux, observer TraceObserver) *Session {
	return &Session{client: client, demux: d, observer: observer}
}

// EnableTrace configures the TPIU for the internal SWO UART at cpuClock Hz
// and starts trace forwarding over the Tcl connection.
func (s *Session) EnableTrace(cpuClock int64) error {
	cmds := []string{
		"init",
		"tpiu config internal - uart off " + strconv.FormatInt(cpuClock, 10),
		"itm ports on",
		"tcl_trace on",
	}
	for _, cmd := range cmds {
		if err := s.client.Send(cmd); err != nil {
			return fmt.Errorf("enable trace: %w", err)
		}
	}
	return nil
}

// Run processes messages until ctx is done or the connection fails. When
// ctx is done, trace forwarding is switched off before the connection is
// closed and Run returns nil.
func (s *Session) Run(ctx context.Context) error {
	stopped := make(chan struct{})
	defer close(stopped)

	go func() {
		select {
		case <-ctx.Done():
			if err := s.client.Send("tcl_trace off"); err != nil {
				slog.Warn("Failed to disable trace", "error", err)
			}
			if err := s.client.Close(); err != nil {
				slog.Warn("Failed to close Tcl connection", "error", err)
			}
		case <-stopped:
		}
	}()

	err := s.client.Receive(s.handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) handle(msg []byte) {
	raw, err := tcl.ParseTrace(msg)
	if errors.Is(err, tcl.ErrNotTrace) {
		if len(msg) > 0 {
			slog.Debug("Tcl reply", "message", string(msg))
		}
		return
	}
	if err != nil {
		slog.Warn("Dropping invalid trace message", "error", err)
		if s.observer != nil {
			s.observer.InvalidTrace()
		}
		return
	}
	if s.observer != nil {
		s.observer.TraceMessage()
	}
	s.demux.Ingest(raw)
}
