package itm

import "fmt"

const (
	// NumChannels is the number of ITM stimulus ports.
	NumChannels = 32

	// MaxPayloadSize is the largest payload a software source packet carries.
	MaxPayloadSize = 4

	headerSourceMask = 0x04
	headerSizeMask   = 0x03
	headerChannelPos = 3
)

// Packet is one decoded software source packet.
// Payload aliases the buffer that was passed to Decode.
type Packet struct {
	Channel uint8
	Payload []byte
}

// Result holds the output of a single Decode call.
type Result struct {
	Packets []Packet
	// Rest is the unfinished tail of the input. It never contains a complete packet.
	Rest []byte
	// Skipped counts bytes discarded while resynchronizing.
	Skipped int
}

// PayloadSize returns the payload length announced by a software source
// header, or 0 if b is not such a header.
func PayloadSize(b byte) int {
	if b&headerSourceMask != 0 {
		return 0
	}
	code := b & headerSizeMask
	if code == 0 {
		return 0
	}
	return 1 << (code - 1)
}

// Decode splits buf into software source packets.
func Decode(buf []byte) Result {
	var res Result
	for len(buf) > 0 {
		size := PayloadSize(buf[0])
		if size == 0 {
			res.Skipped++
			buf = buf[1:]
			continue
		}
		if len(buf)-1 < size {
			res.Rest = buf
			return res
		}
		res.Packets = append(res.Packets, Packet{
			Channel: buf[0] >> headerChannelPos,
			Payload: buf[1 : 1+size],
		})
		buf = buf[1+size:]
	}
	return res
}

// AppendPacket appends the encoding of a software source packet to dst.
func AppendPacket(dst []byte, channel uint8, payload []byte) ([]byte, error) {
	if channel >= NumChannels {
		return dst, fmt.Errorf("itm: channel %d out of range", channel)
	}
	var code byte
	switch len(payload) {
	case 1:
		code = 1
	case 2:
		code = 2
	case 4:
		code = 3
	default:
		return dst, fmt.Errorf("itm: invalid payload size %d", len(payload))
	}
	dst = append(dst, channel<<headerChannelPos|code)
	return append(dst, payload...), nil
}

// AppendText encodes text as a series of one byte packets on channel.
func AppendText(dst []byte, channel uint8, text string) ([]byte, error) {
	var err error
	for i := 0; i < len(text); i++ {
		dst, err = AppendPacket(dst, channel, []byte{text[i]})
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}
