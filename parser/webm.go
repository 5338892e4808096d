package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"

	"github.com/iammeizu/voicesplit/avformat"
)

const (
	TrackTypeVideo    = 1
	TrackTypeAudio    = 2
	TrackTypeSubtitle = 0x11

	closeTimeout = 5 * time.Second
)

var (
	ErrUnsupportedStream = errors.New("stream is not a webm track")
	ErrStreamAdded       = errors.New("webm muxer takes a single stream")
	ErrNoStream          = errors.New("no stream added")
	ErrWriterStalled     = errors.New("webm writer did not finish")
)

// Track is a webm TrackEntry exposed as an avformat.Stream.
type Track struct {
	index int
	entry webm.TrackEntry
}

func NewTrack(index int, entry webm.TrackEntry) *Track {
	return &Track{index: index, entry: entry}
}

func (t *Track) Index() int { return t.index }

func (t *Track) Type() avformat.StreamType {
	switch t.entry.TrackType {
	case TrackTypeAudio:
		return avformat.AudioStream
	case TrackTypeVideo:
		return avformat.VideoStream
	case TrackTypeSubtitle:
		return avformat.SubtitleStream
	}
	return avformat.InvalidStream
}

func (t *Track) Codec() string { return t.entry.CodecID }

// WebM implements avformat.Format with ebml-go.
type WebM struct{}

func (WebM) Name() string { return "webm" }

type document struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment segment         `ebml:"Segment"`
}

// segment keeps the tracks only. Each cluster and block decodes into a single
// slot that the next one overwrites; blocks are collected by the read hook.
type segment struct {
	Tracks  webm.Tracks `ebml:"Tracks"`
	Cluster cluster     `ebml:"Cluster"`
}

type cluster struct {
	Timecode    uint64     `ebml:"Timecode"`
	SimpleBlock ebml.Block `ebml:"SimpleBlock"`
}

type block struct {
	track    uint64
	keyframe bool
	time     int64
	data     []byte
}

// Open parses data, which may end right after any complete SimpleBlock of a
// stream that is still being written.
func (WebM) Open(data []byte) (avformat.Demuxer, error) {
	d := &Demuxer{}
	var clusterTime int64

	hook := func(e *ebml.Element) {
		switch e.Name {
		case "Timecode":
			if v, ok := e.Value.(uint64); ok {
				clusterTime = int64(v)
			}
		case "SimpleBlock":
			switch b := e.Value.(type) {
			case ebml.Block:
				d.blocks = append(d.blocks, newBlock(clusterTime, &b))
			case *ebml.Block:
				d.blocks = append(d.blocks, newBlock(clusterTime, b))
			}
		}
	}

	var doc document
	err := ebml.Unmarshal(bytes.NewReader(data), &doc,
		ebml.WithElementReadHooks(hook),
		ebml.WithIgnoreUnknown(true),
	)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing webm: %w", err)
	}

	for i, entry := range doc.Segment.Tracks.TrackEntry {
		d.tracks = append(d.tracks, NewTrack(i, entry))
	}
	return d, nil
}

func newBlock(clusterTime int64, b *ebml.Block) block {
	return block{
		track:    b.TrackNumber,
		keyframe: b.Keyframe,
		time:     clusterTime + int64(b.Timecode),
		data:     bytes.Join(b.Data, nil),
	}
}

// Demuxer serves the SimpleBlocks of a parsed webm document.
type Demuxer struct {
	tracks []*Track
	blocks []block
	next   map[uint64]int
}

func (d *Demuxer) Streams() []avformat.Stream {
	ret := make([]avformat.Stream, len(d.tracks))
	for i, t := range d.tracks {
		ret[i] = t
	}
	return ret
}

func (d *Demuxer) ReadPacket(s avformat.Stream) (avformat.Packet, error) {
	t, ok := s.(*Track)
	if !ok {
		return avformat.Packet{}, ErrUnsupportedStream
	}
	if d.next == nil {
		d.next = make(map[uint64]int)
	}
	num := t.entry.TrackNumber
	for i := d.next[num]; i < len(d.blocks); i++ {
		b := d.blocks[i]
		if b.track != num {
			continue
		}
		d.next[num] = i + 1
		return avformat.Packet{
			Stream:   t,
			Data:     b.data,
			Size:     len(b.data),
			Keyframe: b.keyframe,
			DTS:      avformat.At(b.time),
			PTS:      avformat.At(b.time),
		}, nil
	}
	d.next[num] = len(d.blocks)
	return avformat.Packet{}, io.EOF
}

func (d *Demuxer) Close() error { return nil }

// Create returns a muxer writing a single track webm to w.
func (WebM) Create(w io.Writer) (avformat.Muxer, error) {
	return &Muxer{out: newSink(w)}, nil
}

// Muxer writes SimpleBlocks with ebml-go's block writer.
type Muxer struct {
	out    *sink
	writer webm.BlockWriteCloser
	last   int64
}

func (m *Muxer) AddStream(tmpl avformat.Stream) error {
	if m.writer != nil {
		return ErrStreamAdded
	}
	t, ok := tmpl.(*Track)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedStream, tmpl)
	}
	ws, err := webm.NewSimpleBlockWriter(m.out, []webm.TrackEntry{t.entry})
	if err != nil {
		return err
	}
	m.writer = ws[0]
	return nil
}

func (m *Muxer) WritePacket(p avformat.Packet) error {
	if m.writer == nil {
		return ErrNoStream
	}
	ts := m.last
	switch {
	case p.PTS.Valid:
		ts = p.PTS.Value
	case p.DTS.Valid:
		ts = p.DTS.Value
	}
	m.last = ts
	_, err := m.writer.Write(p.Keyframe, ts, p.Data)
	return err
}

// Close flushes the block writer and waits until it has released the output.
func (m *Muxer) Close() error {
	if m.writer == nil {
		return nil
	}
	if err := m.writer.Close(); err != nil {
		return err
	}
	select {
	case <-m.out.done:
		return nil
	case <-time.After(closeTimeout):
		return ErrWriterStalled
	}
}

// sink adapts an io.Writer to the io.WriteCloser ebml-go closes once every
// track writer is done.
type sink struct {
	w    io.Writer
	once sync.Once
	done chan struct{}
}

func newSink(w io.Writer) *sink {
	return &sink{w: w, done: make(chan struct{})}
}

func (s *sink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *sink) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
