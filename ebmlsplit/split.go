// Package ebmlsplit turns an arbitrary byte offset of a growing WebM stream
// into the start of a new, self-contained WebM stream without re-encoding.
//
// The raw bytes are cut at the last complete SimpleBlock; everything before is
// demuxed, the packets from the last keyframe at or before the requested
// offset are remuxed into a fresh container, and the untouched tail is glued
// back on.
//
// A keyframe whose payload offset equals the requested offset counts as being
// before it and is kept, so splitting an output again at 0 returns it
// unchanged.
package ebmlsplit

import (
	"fmt"
	"log/slog"

	"github.com/iammeizu/voicesplit/avformat"
)

type Splitter struct {
	format avformat.Format
	logger *slog.Logger
}

type Option func(*Splitter)

func WithLogger(l *slog.Logger) Option {
	return func(s *Splitter) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(f avformat.Format, opts ...Option) *Splitter {
	s := &Splitter{format: f, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

type Result struct {
	Data []byte
	// KeyframeOffset is the payload offset of the keyframe the output starts at.
	KeyframeOffset int
	Packets        int
	HeadSize       int
	TailSize       int
}

// Split returns a new WebM stream holding audio from the last keyframe at or
// before splitBefore onwards, including the bytes after the last complete block.
func (s *Splitter) Split(audio []byte, splitBefore int, adjustTimestamps bool) ([]byte, error) {
	r, err := s.SplitResult(audio, splitBefore, adjustTimestamps)
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

func (s *Splitter) SplitResult(audio []byte, splitBefore int, adjustTimestamps bool) (*Result, error) {
	usable, tail := cutAtLastBlock(audio)

	d, err := s.format.Open(usable)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDemux, s.format.Name(), err)
	}
	sel, err := SelectPackets(d, splitBefore)
	_ = d.Close()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("split point selected",
		slog.Int("keyframe_offset", sel.StartOffset),
		slog.Int("cutoff", splitBefore),
		slog.Int("packets", len(sel.Packets)),
		slog.Int("total_size", sel.ScannedSize))

	muxed, err := Remux(s.format, sel.Stream, sel.Packets, adjustTimestamps)
	if err != nil {
		return nil, err
	}
	out, err := Stitch(muxed, tail)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:           out,
		KeyframeOffset: sel.StartOffset,
		Packets:        len(sel.Packets),
		HeadSize:       len(out) - len(tail),
		TailSize:       len(tail),
	}, nil
}

// cutAtLastBlock separates audio into the demuxable head and the raw tail.
// When the last SimpleBlock ends the buffer the whole buffer is the head;
// otherwise that block and everything after it form the tail.
func cutAtLastBlock(audio []byte) ([]byte, []byte) {
	last, err := FindLastSimpleBlock(audio)
	if err != nil {
		return audio, nil
	}
	cut := last.Position
	if last.End() == len(audio) {
		cut = len(audio)
	}
	return audio[:cut], audio[cut:]
}
