package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammeizu/voicesplit/avformat/avtest"
	"github.com/iammeizu/voicesplit/config"
	"github.com/iammeizu/voicesplit/ebmlsplit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSession(cfg config.SessionConfig) *Session {
	return NewSession(ebmlsplit.New(&avtest.Format{Trailer: true}), cfg, quiet, nil)
}

func blocks() []byte {
	return avtest.Container(
		avtest.BlockSpec{Size: 50, PTS: 0},
		avtest.BlockSpec{Size: 30, PTS: 20, Keyframe: true},
		avtest.BlockSpec{Size: 30, PTS: 40},
	)
}

func TestSession_WriteAndBytes(t *testing.T) {
	s := newTestSession(config.SessionConfig{})
	data := blocks()

	n, err := s.Write(data[:10])
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, err = s.Write(data[10:])
	require.NoError(t, err)

	assert.Equal(t, len(data), s.Len())
	got := s.Bytes()
	assert.Equal(t, data, got)
	got[0] = 0
	assert.Equal(t, data[0], s.Bytes()[0])
}

func TestSession_Flush(t *testing.T) {
	s := newTestSession(config.SessionConfig{})
	_, _ = s.Write(blocks())

	chunk, err := s.Flush(60)
	require.NoError(t, err)

	want := avtest.Container(
		avtest.BlockSpec{Size: 30, PTS: 20, Keyframe: true},
		avtest.BlockSpec{Size: 30, PTS: 40},
	)
	assert.Equal(t, want, chunk.Data)
	assert.Equal(t, 50, chunk.KeyframeOffset)
	assert.Equal(t, 60, chunk.Cutoff)
	assert.Equal(t, 2, chunk.Packets)
	assert.Equal(t, want, s.Bytes())

	more := avtest.Block(1, 60, false, avtest.Fill(10))
	_, _ = s.Write(more)
	assert.Equal(t, append(append([]byte{}, want...), more...), s.Bytes())
}

func TestSession_FlushWithoutKeyframeKeepsBuffer(t *testing.T) {
	s := newTestSession(config.SessionConfig{})
	_, _ = s.Write(blocks())

	_, err := s.Flush(10)
	assert.ErrorIs(t, err, ebmlsplit.ErrNoKeyframeFound)
	assert.Equal(t, blocks(), s.Bytes())
}

func TestSession_RunPublishesChunks(t *testing.T) {
	s := newTestSession(config.SessionConfig{FlushQueue: 2})
	_, _ = s.Write(blocks())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.True(t, s.RequestFlush(10))
	require.True(t, s.RequestFlush(60))

	select {
	case c := <-s.Chunks():
		assert.Equal(t, 60, c.Cutoff)
		assert.Equal(t, 50, c.KeyframeOffset)
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk")
	}

	require.NoError(t, s.Close())
	assert.NoError(t, <-errc)
	_, open := <-s.Chunks()
	assert.False(t, open)
}

func TestSession_RunStopsOnFatalError(t *testing.T) {
	s := NewSession(ebmlsplit.New(&avtest.Format{}), config.SessionConfig{}, quiet, nil)
	_, _ = s.Write([]byte("not a container"))
	require.True(t, s.RequestFlush(0))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ebmlsplit.ErrDemux)
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	s := newTestSession(config.SessionConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestSession_AutoFlush(t *testing.T) {
	data := blocks()
	s := newTestSession(config.SessionConfig{MaxBufferBytes: 100, KeepBytes: 40, FlushQueue: 1})

	_, _ = s.Write(data[:90])
	select {
	case <-s.flushes:
		t.Fatal("flush queued below the limit")
	default:
	}

	_, _ = s.Write(data[90:])
	select {
	case cut := <-s.flushes:
		assert.Equal(t, len(data)-40, cut)
	default:
		t.Fatal("no flush queued")
	}

	_, _ = s.Write([]byte{0x00})
	select {
	case <-s.flushes:
		t.Fatal("second flush queued while one is pending")
	default:
	}
}

func TestSession_Closed(t *testing.T) {
	s := newTestSession(config.SessionConfig{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Write([]byte{1})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, s.RequestFlush(1))
}

func TestWorkerHandler_Run(t *testing.T) {
	s := newTestSession(config.SessionConfig{})
	_, _ = s.Write(blocks())
	wh := NewWorkerHandler(nil, s, quiet)

	got := make(chan Chunk, 1)
	wh.OnChunk(func(c Chunk) { got <- c })

	done := make(chan struct{})
	go func() {
		wh.Run(context.Background())
		close(done)
	}()

	require.True(t, s.RequestFlush(60))
	select {
	case c := <-got:
		assert.Equal(t, 2, c.Packets)
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk")
	}

	require.NoError(t, s.Close())
	<-done
	assert.NoError(t, wh.Err())
}
