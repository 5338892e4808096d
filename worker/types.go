package worker

// Message is a text frame on the stream socket.
type Message struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const (
	KeyFlush     = "flush"
	KeySdp       = "sdp"
	KeyCandidate = "candidate"
	KeyChunk     = "chunk"
	KeyError     = "error"
)
