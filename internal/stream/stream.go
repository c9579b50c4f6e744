// Package stream turns the decoded payload bytes of one ITM channel into
// lines and hands them to a set of sinks.
package stream

import (
	"fmt"
	"log/slog"
)

// MaxLineLength is the number of characters a stream buffers before it
// flushes without a newline.
const MaxLineLength = 1024

// Stream collects characters for one channel and flushes them line by line.
// A Stream is not safe for concurrent use.
type Stream struct {
	id     uint8
	prefix string
	buffer []byte
	sinks  []Sink

	onOverflow func(id uint8)
	onLine     func(id uint8)
}

// Option configures a Stream.
type Option func(*Stream)

// WithPrefix sets the string that is prepended to every line.
func WithPrefix(prefix string) Option {
	return func(s *Stream) { s.prefix = prefix }
}

// WithSinks appends sinks that receive every emitted line.
func WithSinks(sinks ...Sink) Option {
	return func(s *Stream) { s.sinks = append(s.sinks, sinks...) }
}

// WithOverflowHook registers a callback that runs once per overflow.
func WithOverflowHook(fn func(id uint8)) Option {
	return func(s *Stream) { s.onOverflow = fn }
}

// WithLineHook registers a callback that runs once per emitted content line.
func WithLineHook(fn func(id uint8)) Option {
	return func(s *Stream) { s.onLine = fn }
}

// New creates the stream for channel id.
func New(id uint8, opts ...Option) *Stream {
	s := &Stream{
		id:     id,
		buffer: make([]byte, 0, MaxLineLength),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) ID() uint8 {
	return s.id
}

func (s *Stream) Prefix() string {
	return s.prefix
}

// Buffered returns the characters waiting for a newline.
func (s *Stream) Buffered() string {
	return string(s.buffer)
}

// Feed processes the payload of one packet. Bytes outside of ASCII are
// dropped.
func (s *Stream) Feed(payload []byte) {
	for _, b := range payload {
		if b >= 0x80 {
			continue
		}
		s.addChar(b)
	}
}

func (s *Stream) addChar(c byte) {
	if len(s.buffer) >= MaxLineLength {
		s.emit(fmt.Sprintf("swotrace warning: stream %d received %d bytes without receiving a newline. Did you forget one?",
			s.id, MaxLineLength))
		if s.onOverflow != nil {
			s.onOverflow(s.id)
		}
		s.flush(c)
		return
	}

	if c == '\n' {
		s.flush()
		return
	}

	s.buffer = append(s.buffer, c)
}

// flush emits the buffered line followed by extra and clears the buffer.
func (s *Stream) flush(extra ...byte) {
	line := make([]byte, 0, len(s.prefix)+len(s.buffer)+len(extra))
	line = append(line, s.prefix...)
	line = append(line, s.buffer...)
	line = append(line, extra...)
	s.buffer = s.buffer[:0]

	s.emit(string(line))
	if s.onLine != nil {
		s.onLine(s.id)
	}
}

func (s *Stream) emit(line string) {
	for _, sink := range s.sinks {
		if err := sink.WriteLine(line); err != nil {
			slog.Warn("Failed to write line to sink", "channel", s.id, "error", err)
		}
	}
}
