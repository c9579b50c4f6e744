package stream

import (
	"fmt"
	"io"
	"sync"
)

// Sink receives completed lines, without a trailing newline.
type Sink interface {
	WriteLine(line string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(line string) error

func (f SinkFunc) WriteLine(line string) error {
	return f(line)
}

// ConsoleSink writes one newline terminated line per emission.
// It is safe to share between streams and other writers of the same console.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Sink = &ConsoleSink{}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, line)
	return err
}

// Printf writes a formatted status message to the console, serialized with
// the channel output.
func (c *ConsoleSink) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}
