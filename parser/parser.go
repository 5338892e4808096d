// Package parser reads and writes WebM for the splitter and records Opus RTP
// into a WebM byte stream.
package parser

import (
	"io"
	"sync"

	"github.com/at-wat/ebml-go/webm"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"
)

const (
	opusClockRate = 48000
	maxLate       = 50
)

// OpusTrack is the track written for recorded RTP audio.
var OpusTrack = webm.TrackEntry{
	Name:            "Audio",
	TrackNumber:     1,
	TrackUID:        12345,
	CodecID:         "A_OPUS",
	TrackType:       TrackTypeAudio,
	DefaultDuration: 20000000,
	Audio: &webm.Audio{
		SamplingFrequency: opusClockRate,
		Channels:          2,
	},
}

// Parser turns Opus RTP packets into SimpleBlocks written to an io.WriteCloser.
type Parser struct {
	mu             sync.Mutex
	IsClosed       bool
	audioTimestamp uint32

	audioBuilder *samplebuilder.SampleBuilder
	audioWriter  webm.BlockWriteCloser
}

func NewParser(w io.WriteCloser) (*Parser, error) {
	ws, err := webm.NewSimpleBlockWriter(w, []webm.TrackEntry{OpusTrack})
	if err != nil {
		return nil, err
	}
	return &Parser{
		audioBuilder: samplebuilder.New(maxLate, &codecs.OpusPacket{}),
		audioWriter:  ws[0],
	}, nil
}

// PushAudio buffers one RTP packet and writes every sample it completes.
// Timestamps are in milliseconds from the first sample.
func (p *Parser) PushAudio(rtpPacket *rtp.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.IsClosed {
		return io.ErrClosedPipe
	}

	p.audioBuilder.Push(rtpPacket)
	for {
		sample := p.audioBuilder.Pop()
		if sample == nil {
			return nil
		}
		t := p.audioTimestamp / (opusClockRate / 1000)
		p.audioTimestamp += sample.Samples
		if _, err := p.audioWriter.Write(true, int64(t), sample.Data); err != nil {
			return err
		}
	}
}

func (p *Parser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.IsClosed {
		return nil
	}
	p.IsClosed = true
	return p.audioWriter.Close()
}

func (p *Parser) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsClosed
}
