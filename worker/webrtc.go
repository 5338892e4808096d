package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/iammeizu/voicesplit/config"
	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/iammeizu/voicesplit/metrics"
	"github.com/iammeizu/voicesplit/middleware"
	"github.com/iammeizu/voicesplit/observability"
)

var (
	upgrader = &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

// Handler serves streaming sessions over a websocket. Binary frames are
// appended to the session, text frames carry Messages.
type Handler struct {
	splitter *ebmlsplit.Splitter
	cfg      config.SessionConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHandler(s *ebmlsplit.Splitter, cfg config.SessionConfig, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{splitter: s, cfg: cfg, logger: logger, metrics: m}
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(mt int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(mt, b)
}

func (c *conn) sendMessage(key, value string) error {
	b, err := json.Marshal(Message{Key: key, Value: value})
	if err != nil {
		return err
	}
	return c.send(websocket.TextMessage, b)
}

type streamHandler struct {
	*Handler
	logger  *slog.Logger
	conn    *conn
	session *Session
	worker  *WorkerHandler
	pc      *webrtc.PeerConnection
}

func (h *Handler) Serve(ctx *gin.Context) {
	logger := observability.WithRequestID(h.logger, middleware.RequestID(ctx))

	ws, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		observability.WithError(logger, err).Warn("error upgrading")
		return
	}

	sh := &streamHandler{
		Handler: h,
		logger:  logger,
		conn:    &conn{ws: ws},
		session: NewSession(h.splitter, h.cfg, logger, h.metrics),
	}
	sh.worker = NewWorkerHandler(nil, sh.session, logger)
	sh.worker.OnChunk(sh.sendChunk)

	h.metrics.SessionOpened()
	runCtx, cancel := context.WithCancel(ctx.Request.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sh.worker.Run(runCtx)
		if err := sh.worker.Err(); err != nil {
			_ = sh.conn.sendMessage(KeyError, err.Error())
		}
	}()

	defer func() {
		_ = sh.session.Close()
		<-done
		cancel()
		if sh.pc != nil {
			if err := sh.pc.Close(); err != nil {
				observability.WithError(logger, err).Warn("peer connection close")
			}
		}
		if err := ws.Close(); err != nil {
			logger.Debug("websocket close", slog.String("error", err.Error()))
		}
		h.metrics.SessionClosed()
		logger.Info("stream closed")
	}()

	sh.readLoop()
}

func (sh *streamHandler) readLoop() {
	for {
		mt, message, err := sh.conn.ws.ReadMessage()
		if err != nil {
			sh.logger.Debug("read", slog.String("error", err.Error()))
			return
		}

		if mt == websocket.BinaryMessage {
			if _, err := sh.session.Write(message); err != nil {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			sh.logger.Warn("invalid message from websocket")
			_ = sh.conn.sendMessage(KeyError, "invalid message")
			continue
		}
		if err := sh.handleMessage(msg); err != nil {
			observability.WithError(sh.logger, err).Warn("message failed", slog.String("key", msg.Key))
			_ = sh.conn.sendMessage(KeyError, err.Error())
		}
	}
}

func (sh *streamHandler) handleMessage(msg Message) error {
	switch msg.Key {
	case KeyFlush:
		cut, err := strconv.Atoi(msg.Value)
		if err != nil || cut < 0 {
			return fmt.Errorf("invalid split offset %q", msg.Value)
		}
		if !sh.session.RequestFlush(cut) {
			return fmt.Errorf("split queue full")
		}
		return nil

	case KeySdp:
		offer := webrtc.SessionDescription{}
		if err := json.Unmarshal([]byte(msg.Value), &offer); err != nil {
			return fmt.Errorf("remote sdp unmarshal: %w", err)
		}
		pc, err := sh.peerConnection()
		if err != nil {
			return err
		}
		if err := pc.SetRemoteDescription(offer); err != nil {
			return err
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return err
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			return err
		}
		response, err := json.Marshal(*pc.LocalDescription())
		if err != nil {
			return err
		}
		return sh.conn.sendMessage(KeySdp, string(response))

	case KeyCandidate:
		if sh.pc == nil {
			return fmt.Errorf("candidate before sdp")
		}
		remoteCandidate := webrtc.ICECandidateInit{}
		if err := json.Unmarshal([]byte(msg.Value), &remoteCandidate); err != nil {
			return fmt.Errorf("remote candidate unmarshal: %w", err)
		}
		return sh.pc.AddICECandidate(remoteCandidate)
	}
	return fmt.Errorf("unknown message key %q", msg.Key)
}

func (sh *streamHandler) peerConnection() (*webrtc.PeerConnection, error) {
	if sh.pc != nil {
		return sh.pc, nil
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	sh.worker.pc = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		_ = sh.conn.sendMessage(KeyCandidate, string(b))
	})
	pc.OnTrack(sh.worker.OnTrack)
	pc.OnDataChannel(sh.worker.OnDataChannel)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		sh.logger.Info("ICE connection state changed", slog.String("state", state.String()))
	})

	sh.pc = pc
	return pc, nil
}

func (sh *streamHandler) sendChunk(c Chunk) {
	if err := sh.conn.sendMessage(KeyChunk, strconv.Itoa(len(c.Data))); err != nil {
		return
	}
	if err := sh.conn.send(websocket.BinaryMessage, c.Data); err != nil {
		sh.logger.Debug("send chunk", slog.String("error", err.Error()))
	}
}
