// Package outputlog records the lines of several channels into one file.
//
// # Format
//
// Each record follows this format:
//
//	stream timestamp length: content\n
//
// # Fields
//
//   - stream: the channel name, "ch" followed by the ITM channel number, e.g. ch0 or ch31.
//     Other names matching [a-zA-Z0-9_./-]{1,64} are accepted when reading.
//   - timestamp: UTC timestamp in ISO 8601 format: 2006-01-02T15:04:05.000000000Z
//   - length: byte length of content
//   - `: ` literal separator between length and content
//   - content: exactly length bytes. The line never includes its newline, but
//     may contain one when the line was flushed by an overflow.
//   - \n: record separator, always present
//
// # Example
//
//	ch0 2025-01-07T12:00:00.000000000Z 5: hello
//	ch1 2025-01-07T12:00:01.000000000Z 14: WARNING: 3.3 V
//
// Because the length is explicit, content may hold any byte, including
// newlines and NUL bytes from four byte stimulus writes.
package outputlog
