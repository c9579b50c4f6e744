package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Reader parses records written by Writer.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record. It returns io.EOF at a clean end of input
// and io.ErrUnexpectedEOF for a truncated record.
func (rd *Reader) Next() (Chunk, error) {
	var chunk Chunk

	stream, err := rd.r.ReadString(' ')
	if err != nil {
		if errors.Is(err, io.EOF) && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", unexpected(err))
	}
	chunk.Stream = stream[:len(stream)-1]
	if !validStream(chunk.Stream) {
		return chunk, fmt.Errorf("invalid stream name %q", chunk.Stream)
	}

	timestampStr, err := rd.r.ReadString(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", unexpected(err))
	}
	chunk.Timestamp, err = time.Parse(timeFormat, timestampStr[:len(timestampStr)-1])
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}

	lengthStr, err := rd.r.ReadString(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", unexpected(err))
	}
	length, err := strconv.Atoi(lengthStr[:len(lengthStr)-1])
	if err != nil || length < 0 {
		return chunk, fmt.Errorf("parsing length %q", lengthStr)
	}

	b, err := rd.r.ReadByte()
	if err != nil {
		return chunk, fmt.Errorf("reading space after colon: %w", unexpected(err))
	}
	if b != ' ' {
		return chunk, fmt.Errorf("expected space after colon, got %q", b)
	}

	chunk.Line = make([]byte, length)
	if _, err := io.ReadFull(rd.r, chunk.Line); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", length, unexpected(err))
	}

	b, err = rd.r.ReadByte()
	if err != nil {
		return chunk, fmt.Errorf("reading final newline: %w", unexpected(err))
	}
	if b != '\n' {
		return chunk, fmt.Errorf("expected newline separator, got %q", b)
	}
	return chunk, nil
}

// All reads every remaining record, stopping at the first error.
func (rd *Reader) All() ([]Chunk, error) {
	var chunks []Chunk
	for {
		chunk, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
