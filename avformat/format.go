package avformat

import "io"

// Demuxer enumerates the packets of an opened container.
type Demuxer interface {
	Streams() []Stream
	// ReadPacket returns the next packet of s in container order, or io.EOF.
	ReadPacket(s Stream) (Packet, error)
	Close() error
}

// Muxer serializes packets into a fresh container.
type Muxer interface {
	AddStream(template Stream) error
	WritePacket(Packet) error
	// Close flushes buffered structure, including any trailing index.
	Close() error
}

// Format opens containers of one kind for reading and writing.
type Format interface {
	Name() string
	Open(data []byte) (Demuxer, error)
	Create(w io.Writer) (Muxer, error)
}

// StreamsOfType returns the streams of type t in container order.
func StreamsOfType(d Demuxer, t StreamType) []Stream {
	var ret []Stream
	for _, s := range d.Streams() {
		if s.Type() == t {
			ret = append(ret, s)
		}
	}
	return ret
}
