package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/iammeizu/voicesplit/observability"
	"github.com/iammeizu/voicesplit/parser"
)

const (
	RembInterval = time.Second
	// Bitrate is the receiver estimate advertised to senders; plenty for Opus voice.
	Bitrate = 64 * 1024
)

type Worker interface {
	// Used to do task
	Run(ctx context.Context)

	// Used to handle media data
	OnTrack(track *webrtc.Track, receiver *webrtc.RTPReceiver)

	// Used to handle non-media data
	OnDataChannel(d *webrtc.DataChannel)
}

// WorkerHandler feeds a Session from WebRTC audio and fans out its chunks.
type WorkerHandler struct {
	pc      *webrtc.PeerConnection
	session *Session
	logger  *slog.Logger

	mu        sync.Mutex
	parser    *parser.Parser
	listeners []func(Chunk)
	err       error
}

var _ Worker = (*WorkerHandler)(nil)

func NewWorkerHandler(pc *webrtc.PeerConnection, s *Session, logger *slog.Logger) *WorkerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerHandler{pc: pc, session: s, logger: logger}
}

// OnChunk registers fn to receive every chunk produced by the session.
func (wh *WorkerHandler) OnChunk(fn func(Chunk)) {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	wh.listeners = append(wh.listeners, fn)
}

// Run drives the session until it ends and publishes its chunks.
func (wh *WorkerHandler) Run(ctx context.Context) {
	errc := make(chan error, 1)
	go func() {
		errc <- wh.session.Run(ctx)
	}()

	for chunk := range wh.session.Chunks() {
		wh.logger.Info("buffer split",
			slog.Int("cutoff", chunk.Cutoff),
			slog.Int("keyframe_offset", chunk.KeyframeOffset),
			slog.Int("packets", chunk.Packets),
			slog.Int("bytes", len(chunk.Data)))

		wh.mu.Lock()
		listeners := append([]func(Chunk){}, wh.listeners...)
		wh.mu.Unlock()
		for _, fn := range listeners {
			fn(chunk)
		}
	}

	err := <-errc
	wh.mu.Lock()
	wh.err = err
	wh.mu.Unlock()
}

// Err returns the error the session ended with, if any.
func (wh *WorkerHandler) Err() error {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return wh.err
}

func (wh *WorkerHandler) audioParser() (*parser.Parser, error) {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	if wh.parser == nil {
		p, err := parser.NewParser(appendOnly{wh.session})
		if err != nil {
			return nil, err
		}
		wh.parser = p
	}
	return wh.parser, nil
}

func (wh *WorkerHandler) OnTrack(track *webrtc.Track, receiver *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		wh.logger.Warn("ignoring non-audio track", slog.String("kind", track.Kind().String()))
		return
	}
	p, err := wh.audioParser()
	if err != nil {
		observability.WithError(wh.logger, err).Error("creating webm writer")
		return
	}
	defer func() {
		if err := p.Close(); err != nil {
			observability.WithError(wh.logger, err).Warn("closing webm writer")
		}
	}()

	go func() {
		ticker := time.NewTicker(RembInterval)
		defer ticker.Stop()
		for range ticker.C {
			if p.Closed() {
				return
			}
			if writeErr := wh.pc.WriteRTCP([]rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: Bitrate, SenderSSRC: track.SSRC()}}); writeErr != nil {
				wh.logger.Debug("send REMB", slog.String("error", writeErr.Error()))
			}
		}
	}()

	for {
		rtpPacket, readErr := track.ReadRTP()
		if readErr != nil {
			observability.WithError(wh.logger, readErr).Info("audio track ended")
			return
		}
		if err := p.PushAudio(rtpPacket); err != nil {
			observability.WithError(wh.logger, err).Error("writing audio")
			return
		}
	}
}

// OnDataChannel accepts split offsets as text messages and reports chunks back.
func (wh *WorkerHandler) OnDataChannel(d *webrtc.DataChannel) {
	logger := wh.logger.With(slog.String("label", d.Label()))
	logger.Info("data channel opened")

	wh.OnChunk(func(c Chunk) {
		b, _ := json.Marshal(Message{Key: KeyChunk, Value: strconv.Itoa(len(c.Data))})
		if err := d.SendText(string(b)); err != nil {
			logger.Debug("send chunk notice", slog.String("error", err.Error()))
		}
	})

	d.OnMessage(func(msg webrtc.DataChannelMessage) {
		cut, err := strconv.Atoi(string(msg.Data))
		if err != nil {
			logger.Warn("invalid split offset", slog.String("value", string(msg.Data)))
			return
		}
		if !wh.session.RequestFlush(cut) {
			logger.Warn("split not queued", slog.Int("cutoff", cut))
		}
	})
}
