package ebmlsplit

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/iammeizu/voicesplit/avformat"
	"github.com/iammeizu/voicesplit/avformat/avtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	f := &avtest.Format{Trailer: true}
	s := New(f)

	out, err := s.Split(threeBlocks(), 60, false)
	require.NoError(t, err)

	want := avtest.Container(
		avtest.BlockSpec{Size: 30, PTS: 20, Keyframe: true},
		avtest.BlockSpec{Size: 30, PTS: 40},
	)
	assert.Equal(t, want, out)
	assert.True(t, f.Last().Closed)
}

func TestSplit_AdjustTimestamps(t *testing.T) {
	f := &avtest.Format{Trailer: true}
	s := New(f)

	out, err := s.Split(threeBlocks(), 60, true)
	require.NoError(t, err)

	written := f.Last().Written
	require.Len(t, written, 2)
	assert.Equal(t, avformat.At(0), written[0].PTS)
	assert.Equal(t, avformat.At(0), written[0].DTS)
	assert.Equal(t, avformat.At(20), written[1].PTS)
	assert.Equal(t, avformat.At(20), written[1].DTS)

	d := openFake(t, out)
	sel, err := SelectPackets(d, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sel.Packets[0].PTS.Value)
	assert.Equal(t, int64(20), sel.Packets[1].PTS.Value)
}

func TestSplit_MissingTimestampsAreKept(t *testing.T) {
	f := &avtest.Format{}
	pkts := []avformat.Packet{
		{Data: avtest.Fill(4), Size: 4, Keyframe: true, DTS: avformat.At(100), PTS: avformat.At(100)},
		{Data: avtest.Fill(4), Size: 4},
		{Data: avtest.Fill(4), Size: 4, DTS: avformat.At(140), PTS: avformat.At(140)},
	}

	_, err := Remux(f, &avtest.Stream{Kind: avformat.AudioStream}, pkts, true)
	require.NoError(t, err)

	written := f.Last().Written
	assert.Equal(t, avformat.At(0), written[0].PTS)
	assert.False(t, written[1].PTS.Valid)
	assert.False(t, written[1].DTS.Valid)
	assert.Equal(t, avformat.At(40), written[2].DTS)
}

func TestSplit_KeepsRawTail(t *testing.T) {
	partial := avtest.Block(1, 60, false, avtest.Fill(30))[:12]
	audio := append(threeBlocks(), partial...)

	r, err := New(&avtest.Format{Trailer: true}).SplitResult(audio, 60, false)
	require.NoError(t, err)

	assert.Equal(t, 50, r.KeyframeOffset)
	assert.Equal(t, 2, r.Packets)
	assert.Equal(t, len(partial), r.TailSize)
	assert.Len(t, r.Data, r.HeadSize+r.TailSize)
	assert.True(t, bytes.HasSuffix(r.Data, partial))
}

func TestSplit_TrailingNonBlockBytesGoToTail(t *testing.T) {
	// A cluster header after the last block: the block is complete but not
	// at the end, so it is carried over raw.
	extra := []byte{0x1F, 0x43, 0xB6, 0x75, 0x01}
	audio := append(threeBlocks(), extra...)

	r, err := New(&avtest.Format{}).SplitResult(audio, 60, false)
	require.NoError(t, err)

	lastBlock := avtest.Block(1, 40, false, avtest.Fill(30))
	assert.Equal(t, len(lastBlock)+len(extra), r.TailSize)
	assert.Equal(t, 1, r.Packets)
	assert.True(t, bytes.HasSuffix(r.Data, append(lastBlock, extra...)))
}

func TestSplit_AtZeroIsFullRemux(t *testing.T) {
	audio := avtest.Container(
		avtest.BlockSpec{Size: 20, PTS: 0, Keyframe: true},
		avtest.BlockSpec{Size: 20, PTS: 20},
		avtest.BlockSpec{Size: 20, PTS: 40, Keyframe: true},
	)
	f := &avtest.Format{Trailer: true}

	out, err := New(f).Split(audio, 0, false)
	require.NoError(t, err)

	d := openFake(t, audio)
	var all []avformat.Packet
	for {
		p, err := d.ReadPacket(d.Streams()[0])
		if err != nil {
			break
		}
		all = append(all, p)
	}
	muxed, err := Remux(f, d.Streams()[0], all, false)
	require.NoError(t, err)
	want, err := StripTrailer(muxed)
	require.NoError(t, err)

	assert.Equal(t, want, out)
	assert.Equal(t, audio, out)
}

func TestSplit_NoKeyframe(t *testing.T) {
	out, err := New(&avtest.Format{}).Split(threeBlocks(), 10, false)
	assert.ErrorIs(t, err, ErrNoKeyframeFound)
	assert.Nil(t, out)
}

func TestSplit_NoBlocksAtAll(t *testing.T) {
	_, err := New(&avtest.Format{}).Split(avtest.Header(avformat.AudioStream), 10, false)
	assert.ErrorIs(t, err, ErrNoKeyframeFound)
}

func TestSplit_OpenErrorIsDemuxError(t *testing.T) {
	_, err := New(&avtest.Format{OpenErr: errors.New("boom")}).Split(threeBlocks(), 60, false)
	assert.ErrorIs(t, err, ErrDemux)
}

func TestSplit_LogsSelection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := New(&avtest.Format{}, WithLogger(logger)).Split(threeBlocks(), 60, false)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "keyframe_offset=50")
	assert.Contains(t, buf.String(), "cutoff=60")
	assert.Contains(t, buf.String(), "packets=2")
}
