package ebmlsplit

import (
	"errors"
	"fmt"
	"io"

	"github.com/iammeizu/voicesplit/avformat"
)

// Selection is the run of packets kept for a split: the last keyframe at or
// before the cut and everything after it.
type Selection struct {
	Stream      avformat.Stream
	Packets     []avformat.Packet
	StartOffset int
	// ScannedSize is the sum of all packet sizes in the stream.
	ScannedSize int
}

func audioStream(d avformat.Demuxer) (avformat.Stream, error) {
	streams := avformat.StreamsOfType(d, avformat.AudioStream)
	switch len(streams) {
	case 0:
		return nil, ErrNoAudioStream
	case 1:
		return streams[0], nil
	}
	return nil, fmt.Errorf("%w: found %d", ErrMultipleAudioStreams, len(streams))
}

// SelectPackets walks the audio stream of d and keeps the packets from the
// last keyframe whose payload offset is at or before splitBefore.
func SelectPackets(d avformat.Demuxer, splitBefore int) (*Selection, error) {
	stream, err := audioStream(d)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Stream: stream, StartOffset: -1}
	offset := 0
	for {
		pkt, err := d.ReadPacket(stream)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDemux, err)
		}
		if pkt.Keyframe && offset <= splitBefore {
			sel.Packets = sel.Packets[:0]
			sel.StartOffset = offset
		}
		sel.Packets = append(sel.Packets, pkt)
		offset += pkt.Size
	}
	sel.ScannedSize = offset

	if sel.StartOffset < 0 {
		return nil, fmt.Errorf("%w: cutoff %d, scanned %d bytes", ErrNoKeyframeFound, splitBefore, offset)
	}
	return sel, nil
}
