// Package demux routes decoded ITM packets to the stream registered for
// their channel.
package demux

import (
	"swotrace/internal/stream"
	"swotrace/pkg/itm"
)

// Observer is notified about decoding events. All methods are called from
// the goroutine that calls Ingest.
type Observer interface {
	BytesSkipped(n int)
	PacketRouted(channel uint8, size int)
	PacketDropped(channel uint8, size int)
}

// Demux owns the channel registry and the bytes carried between Ingest
// calls. It is not safe for concurrent use; one goroutine must own it.
type Demux struct {
	streams  map[uint8]*stream.Stream
	carry    []byte
	observer Observer
}

func New() *Demux {
	return &Demux{streams: make(map[uint8]*stream.Stream)}
}

// SetObserver installs an observer. Pass nil to remove it.
func (d *Demux) SetObserver(o Observer) {
	d.observer = o
}

// Register adds s under its channel id, replacing any stream that was
// registered for the same id. Buffered characters of the replaced stream
// are lost.
func (d *Demux) Register(s *stream.Stream) {
	d.streams[s.ID()] = s
}

// Stream returns the stream registered for channel id.
func (d *Demux) Stream(id uint8) (*stream.Stream, bool) {
	s, ok := d.streams[id]
	return s, ok
}

// Carry returns the bytes held back from the previous Ingest call.
func (d *Demux) Carry() []byte {
	return d.carry
}

// Ingest decodes raw together with the carried bytes and feeds every packet
// to its stream. Packets for unregistered channels are discarded.
func (d *Demux) Ingest(raw []byte) {
	buf := raw
	if len(d.carry) > 0 {
		buf = append(d.carry, raw...)
	}

	res := itm.Decode(buf)
	if d.observer != nil && res.Skipped > 0 {
		d.observer.BytesSkipped(res.Skipped)
	}

	for _, p := range res.Packets {
		s, ok := d.streams[p.Channel]
		if !ok {
			if d.observer != nil {
				d.observer.PacketDropped(p.Channel, len(p.Payload))
			}
			continue
		}
		if d.observer != nil {
			d.observer.PacketRouted(p.Channel, len(p.Payload))
		}
		s.Feed(p.Payload)
	}

	// Rest may alias raw, which belongs to the caller.
	d.carry = append(make([]byte, 0, itm.MaxPayloadSize+1), res.Rest...)
}
