// Package tcl speaks the OpenOCD Tcl server protocol: commands and replies
// are terminated by a 0x1a byte, and trace data arrives as hex encoded
// "type target_trace data ..." notifications once "tcl_trace on" is sent.
package tcl

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Terminator ends every message in both directions.
const Terminator = 0x1a

const tracePrefix = "type target_trace data "

var (
	ErrNotTrace         = errors.New("tcl: not a trace message")
	ErrConnectionClosed = errors.New("tcl: connection closed")
)

// Splitter cuts a byte stream into messages. Bytes after the last
// terminator are kept until the next Write.
type Splitter struct {
	buf []byte
}

// Write appends data and returns all messages it completed, without their
// terminators.
func (s *Splitter) Write(data []byte) [][]byte {
	s.buf = append(s.buf, data...)
	var msgs [][]byte
	for {
		i := bytes.IndexByte(s.buf, Terminator)
		if i < 0 {
			break
		}
		msg := make([]byte, i)
		copy(msg, s.buf[:i])
		msgs = append(msgs, msg)
		s.buf = s.buf[i+1:]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return msgs
}

// Pending returns the number of bytes waiting for a terminator.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// ParseTrace decodes a trace notification into raw trace bytes. OpenOCD
// always sends an even number of hex digits; a payload with an odd count is
// rejected as a whole and the caller drops it.
func ParseTrace(msg []byte) ([]byte, error) {
	if !bytes.HasPrefix(msg, []byte(tracePrefix)) || !bytes.HasSuffix(msg, []byte("\r\n")) {
		return nil, ErrNotTrace
	}
	data := msg[len(tracePrefix) : len(msg)-2]
	out := make([]byte, hex.DecodedLen(len(data)))
	if _, err := hex.Decode(out, data); err != nil {
		return nil, fmt.Errorf("tcl: decoding trace data: %w", err)
	}
	return out, nil
}

// FormatCommand frames cmd for the Tcl server.
func FormatCommand(cmd string) []byte {
	out := make([]byte, 0, len(cmd)+2)
	out = append(out, cmd...)
	return append(out, '\n', Terminator)
}

var quoter = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`[`, `\[`,
	`]`, `\]`,
	`$`, `\$`,
)

// FormatEcho frames a command that makes the server print line verbatim on
// its console.
func FormatEcho(line string) []byte {
	var b bytes.Buffer
	b.WriteString(`puts "`)
	b.WriteString(quoter.Replace(line))
	b.WriteString("\"\r\n")
	b.WriteByte(Terminator)
	return b.Bytes()
}
