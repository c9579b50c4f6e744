package outputlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("outputlog: writer closed")

// Writer records lines from any goroutine. A single goroutine owns the
// underlying io.Writer, so callers never block on disk I/O unless the queue
// is full.
type Writer struct {
	chunks chan Chunk
	done   chan struct{}
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	err    error
}

// NewWriter creates a Writer that appends records to w.
// The internal goroutine runs until Close is called.
func NewWriter(w io.Writer) *Writer {
	wr := &Writer{
		chunks: make(chan Chunk, 256),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	go func() {
		defer close(wr.done)
		for chunk := range wr.chunks {
			if wr.err != nil {
				continue
			}
			if _, err := w.Write(FormatChunk(chunk)); err != nil {
				slog.Error("Failed to write output log", "error", err)
				wr.err = err
			}
		}
	}()

	return wr
}

// WriteLine records line for stream with the current time.
func (w *Writer) WriteLine(stream, line string) error {
	if !validStream(stream) {
		return fmt.Errorf("outputlog: invalid stream name %q", stream)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	w.chunks <- Chunk{
		Stream:    stream,
		Timestamp: w.now().UTC(),
		Line:      []byte(line),
	}
	return nil
}

// Close flushes pending records and stops the writer goroutine. It returns
// the first write error, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.chunks)
	w.mu.Unlock()

	<-w.done
	return w.err
}
