// Package avtest provides an in-memory avformat.Format for tests.
//
// A container is a two byte magic, a stream count, one type byte per stream,
// then SimpleBlock elements laid out the way WebM writes them (0xA3, two byte
// size, track, 16 bit timecode, flags, payload), then an optional trailer
// standing in for Cues.
package avtest

import (
	"bytes"
	"errors"
	"io"

	"github.com/iammeizu/voicesplit/avformat"
)

var (
	Magic   = []byte{'F', 'K'}
	Trailer = []byte{0x1C, 0x53, 0xBB, 0x6B, 0x82, 0x00, 0x00}
)

type Stream struct {
	Idx  int
	Kind avformat.StreamType
}

func (s *Stream) Index() int                { return s.Idx }
func (s *Stream) Type() avformat.StreamType { return s.Kind }
func (s *Stream) Codec() string             { return "test" }

func Header(types ...avformat.StreamType) []byte {
	h := append([]byte{}, Magic...)
	h = append(h, byte(len(types)))
	for _, t := range types {
		h = append(h, byte(t))
	}
	return h
}

// Block encodes a SimpleBlock for the 1-based track.
func Block(track int, timecode int16, keyframe bool, payload []byte) []byte {
	size := 1 + 2 + 1 + len(payload)
	b := []byte{0xA3, 0x40 | byte(size>>8), byte(size), 0x80 | byte(track)}
	b = append(b, byte(uint16(timecode)>>8), byte(timecode))
	if keyframe {
		b = append(b, 0x80)
	} else {
		b = append(b, 0x00)
	}
	return append(b, payload...)
}

// Fill returns n payload bytes that never look like a block header.
func Fill(n int) []byte {
	return bytes.Repeat([]byte{0x11}, n)
}

type BlockSpec struct {
	Size     int
	PTS      int16
	Keyframe bool
}

// Container builds a single audio stream container.
func Container(blocks ...BlockSpec) []byte {
	buf := Header(avformat.AudioStream)
	for _, b := range blocks {
		buf = append(buf, Block(1, b.PTS, b.Keyframe, Fill(b.Size))...)
	}
	return buf
}

type Format struct {
	// Trailer makes muxers append Trailer on Close.
	Trailer bool
	OpenErr error
	Muxers  []*Muxer
}

func (f *Format) Name() string { return "avtest" }

func (f *Format) Open(data []byte) (avformat.Demuxer, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if len(data) < 3 || !bytes.Equal(data[:2], Magic) || len(data) < 3+int(data[2]) {
		return nil, errors.New("avtest: bad header")
	}
	n := int(data[2])
	d := &Demuxer{}
	for i := 0; i < n; i++ {
		d.StreamList = append(d.StreamList, &Stream{Idx: i, Kind: avformat.StreamType(data[3+i])})
	}

	pos := 3 + n
	for pos+3 <= len(data) && data[pos] == 0xA3 && data[pos+1]&0xC0 == 0x40 {
		size := int(data[pos+1]&0x3F)<<8 | int(data[pos+2])
		end := pos + 3 + size
		if size < 4 || end > len(data) {
			break
		}
		body := data[pos+3 : end]
		track := int(body[0]&0x7F) - 1
		if track < 0 || track >= n {
			return nil, errors.New("avtest: unknown track")
		}
		tc := int64(int16(uint16(body[1])<<8 | uint16(body[2])))
		payload := body[4:]
		d.Packets = append(d.Packets, avformat.Packet{
			Stream:   d.StreamList[track],
			Data:     payload,
			Size:     len(payload),
			Keyframe: body[3] == 0x80,
			DTS:      avformat.At(tc),
			PTS:      avformat.At(tc),
		})
		pos = end
	}
	return d, nil
}

func (f *Format) Create(w io.Writer) (avformat.Muxer, error) {
	m := &Muxer{w: w, trailer: f.Trailer}
	f.Muxers = append(f.Muxers, m)
	return m, nil
}

// Last returns the most recently created muxer.
func (f *Format) Last() *Muxer {
	return f.Muxers[len(f.Muxers)-1]
}

type Demuxer struct {
	StreamList []avformat.Stream
	Packets    []avformat.Packet
	next       int
}

func (d *Demuxer) Streams() []avformat.Stream { return d.StreamList }

func (d *Demuxer) ReadPacket(s avformat.Stream) (avformat.Packet, error) {
	for d.next < len(d.Packets) {
		p := d.Packets[d.next]
		d.next++
		if p.Stream == s {
			return p, nil
		}
	}
	return avformat.Packet{}, io.EOF
}

func (d *Demuxer) Close() error { return nil }

type Muxer struct {
	w       io.Writer
	trailer bool

	Written []avformat.Packet
	Closed  bool
}

func (m *Muxer) AddStream(tmpl avformat.Stream) error {
	_, err := m.w.Write(Header(tmpl.Type()))
	return err
}

func (m *Muxer) WritePacket(p avformat.Packet) error {
	m.Written = append(m.Written, p)
	_, err := m.w.Write(Block(1, int16(p.PTS.Value), p.Keyframe, p.Data))
	return err
}

func (m *Muxer) Close() error {
	m.Closed = true
	if m.trailer {
		_, err := m.w.Write(Trailer)
		return err
	}
	return nil
}
