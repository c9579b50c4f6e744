package outputlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Chunk is one recorded line.
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC timestamp
	Line      []byte
}

// FormatChunk formats a Chunk as one record.
func FormatChunk(chunk Chunk) []byte {
	timestamp := chunk.Timestamp.UTC().Format(timeFormat)
	out := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, timestamp, len(chunk.Line))
	out = append(out, chunk.Line...)
	return append(out, '\n')
}

// StreamName returns the stream name used for an ITM channel.
func StreamName(channel uint8) string {
	return "ch" + strconv.Itoa(int(channel))
}

// ParseStreamName is the inverse of StreamName.
func ParseStreamName(stream string) (uint8, bool) {
	rest, ok := strings.CutPrefix(stream, "ch")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

func validStream(stream string) bool {
	if len(stream) == 0 || len(stream) > 64 {
		return false
	}
	for i := 0; i < len(stream); i++ {
		c := stream[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '/', c == '-':
		default:
			return false
		}
	}
	return true
}
