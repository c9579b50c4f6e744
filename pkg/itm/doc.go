// Package itm decodes ARM ITM (Instrumentation Trace Macrocell) software
// source packets from a raw SWO byte stream.
//
// # Packet Format
//
// Every packet starts with a one byte header:
//
//	bit  7..3   channel (stimulus port 0..31)
//	bit  2      0 for software source packets
//	bit  1..0   size code: 1, 2 or 3 for a 1, 2 or 4 byte payload
//
// The payload follows the header directly. Headers with bit 2 set
// (timestamps, hardware source packets, extension packets) and headers with
// a size code of 0 (sync, overflow) are not decoded. The decoder skips them one
// byte at a time until it finds the next software source header.
//
// # Chunked Input
//
// Decode never fails. When the end of the buffer cuts a packet in half, the
// unfinished bytes are returned as Result.Rest and must be passed in front of
// the next chunk.
package itm
