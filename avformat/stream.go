// Package avformat describes the demux/mux capability the splitter drives.
// Any container library can satisfy it; the splitter never sees the
// library's own types or errors.
package avformat

type StreamType int

const (
	InvalidStream StreamType = iota
	AudioStream
	VideoStream
	SubtitleStream
)

func (t StreamType) String() string {
	switch t {
	case AudioStream:
		return "audio"
	case VideoStream:
		return "video"
	case SubtitleStream:
		return "subtitle"
	}
	return "invalid"
}

// Stream is one elementary stream of a container. Implementations carry
// whatever codec parameters they need to act as a template for a new
// output stream.
type Stream interface {
	Index() int
	Type() StreamType
	Codec() string
}
