package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/iammeizu/voicesplit/config"
	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/iammeizu/voicesplit/metrics"
	"github.com/iammeizu/voicesplit/observability"
)

var ErrSessionClosed = errors.New("session closed")

// Chunk is the standalone stream that replaced the session buffer after a split.
type Chunk struct {
	Data           []byte
	Cutoff         int
	KeyframeOffset int
	Packets        int
}

// Session holds the append-only container stream of one connection. Splits
// requested with RequestFlush run on the Run goroutine so that writers are
// never blocked by one.
type Session struct {
	mu          sync.Mutex
	buf         []byte
	closed      bool
	autoPending bool

	flushMu  sync.Mutex
	splitter *ebmlsplit.Splitter
	cfg      config.SessionConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics

	flushes chan int
	chunks  chan Chunk
}

func NewSession(s *ebmlsplit.Splitter, cfg config.SessionConfig, logger *slog.Logger, m *metrics.Metrics) *Session {
	queue := cfg.FlushQueue
	if queue < 1 {
		queue = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		splitter: s,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		flushes:  make(chan int, queue),
		chunks:   make(chan Chunk, queue),
	}
}

// Write appends p. Once the buffer outgrows MaxBufferBytes a split keeping
// about KeepBytes is queued.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	s.buf = append(s.buf, p...)
	s.metrics.SessionReceived(len(p))

	if s.cfg.MaxBufferBytes > 0 && len(s.buf) > s.cfg.MaxBufferBytes && !s.autoPending {
		select {
		case s.flushes <- len(s.buf) - s.cfg.KeepBytes:
			s.autoPending = true
		default:
		}
	}
	return len(p), nil
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Bytes returns a copy of the current buffer.
func (s *Session) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf...)
}

// RequestFlush queues a split at splitBefore. It reports false when the
// queue is full or the session is closed.
func (s *Session) RequestFlush(splitBefore int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.flushes <- splitBefore:
		return true
	default:
		return false
	}
}

// Flush splits the buffer at splitBefore and replaces it with the result.
// Bytes written while the split runs are kept after the new stream. On
// error the buffer is left untouched.
func (s *Session) Flush(splitBefore int) (*Chunk, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	n := len(s.buf)
	snapshot := s.buf[:n:n]
	s.autoPending = false
	s.mu.Unlock()

	start := time.Now()
	r, err := s.splitter.SplitResult(snapshot, splitBefore, s.cfg.AdjustTimestamps)
	if err != nil {
		s.metrics.ObserveSplit(err, time.Since(start), n, 0)
		return nil, err
	}
	s.metrics.ObserveSplit(nil, time.Since(start), n, len(r.Data))

	s.mu.Lock()
	rest := s.buf[n:]
	buf := make([]byte, 0, len(r.Data)+len(rest))
	buf = append(buf, r.Data...)
	s.buf = append(buf, rest...)
	s.mu.Unlock()

	return &Chunk{
		Data:           r.Data,
		Cutoff:         splitBefore,
		KeyframeOffset: r.KeyframeOffset,
		Packets:        r.Packets,
	}, nil
}

// Chunks delivers the result of every queued split. It is closed when Run
// returns.
func (s *Session) Chunks() <-chan Chunk {
	return s.chunks
}

// Run performs queued splits until ctx is done or the session is closed.
// A split that finds no keyframe yet is skipped; any other failure ends the
// session and is returned.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.chunks)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cut, ok := <-s.flushes:
			if !ok {
				return nil
			}
			chunk, err := s.Flush(cut)
			if errors.Is(err, ebmlsplit.ErrNoKeyframeFound) {
				s.logger.Debug("split deferred, waiting for more data", slog.Int("cutoff", cut))
				continue
			}
			if err != nil {
				observability.WithError(s.logger, err).Error("split failed", slog.Int("cutoff", cut))
				return err
			}
			select {
			case s.chunks <- *chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close stops accepting data; Run drains pending splits and returns.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.flushes)
	return nil
}

// appendOnly lets a producer that closes its output write into a session
// without ending it.
type appendOnly struct {
	s *Session
}

func (a appendOnly) Write(p []byte) (int, error) { return a.s.Write(p) }
func (a appendOnly) Close() error                { return nil }

var _ io.WriteCloser = appendOnly{}
