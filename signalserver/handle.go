package signalserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iammeizu/voicesplit/config"
	"github.com/iammeizu/voicesplit/ebmlsplit"
	"github.com/iammeizu/voicesplit/metrics"
	"github.com/iammeizu/voicesplit/middleware"
	"github.com/iammeizu/voicesplit/observability"
	"github.com/iammeizu/voicesplit/worker"
)

const ContentTypeWebM = "audio/webm"

// Server exposes the splitter over HTTP: one-shot splits and streaming sessions.
type Server struct {
	cfg      *config.Config
	splitter *ebmlsplit.Splitter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

func NewServer(cfg *config.Config, s *ebmlsplit.Splitter, logger *slog.Logger, m *metrics.Metrics, g prometheus.Gatherer) *Server {
	srv := &Server{
		cfg:      cfg,
		splitter: s,
		logger:   logger,
		metrics:  m,
		gatherer: g,
		engine:   gin.New(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestIDMiddleWare)
	r.Use(middleware.AccessLog(s.metrics))

	r.GET("/healthz", s.handleHealth)
	r.POST("/split", s.handleSplit)
	r.GET("/stream", worker.NewHandler(s.splitter, s.cfg.Session, s.logger, s.metrics).Serve)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hs := &http.Server{
		Addr:         s.cfg.Server.Address(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", hs.Addr))
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSplit(ctx *gin.Context) {
	offset, err := strconv.Atoi(ctx.Query("offset"))
	if err != nil || offset < 0 {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}
	adjust := s.cfg.Session.AdjustTimestamps
	if v := ctx.Query("adjust_timestamps"); v != "" {
		if adjust, err = strconv.ParseBool(v); err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "adjust_timestamps must be a boolean"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.cfg.Server.MaxUploadBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	r, err := s.splitter.SplitResult(body, offset, adjust)
	if err != nil {
		s.metrics.ObserveSplit(err, time.Since(start), len(body), 0)
		observability.WithError(observability.LoggerFromContext(ctx.Request.Context()), err).
			Warn("split failed", slog.Int("offset", offset), slog.Int("bytes", len(body)))
		ctx.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "outcome": metrics.Outcome(err)})
		return
	}
	s.metrics.ObserveSplit(nil, time.Since(start), len(body), len(r.Data))

	ctx.Header("X-Keyframe-Offset", strconv.Itoa(r.KeyframeOffset))
	ctx.Header("X-Packets", strconv.Itoa(r.Packets))
	ctx.Header("X-Tail-Bytes", strconv.Itoa(r.TailSize))
	ctx.Data(http.StatusOK, ContentTypeWebM, r.Data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ebmlsplit.ErrNoKeyframeFound),
		errors.Is(err, ebmlsplit.ErrNoAudioStream),
		errors.Is(err, ebmlsplit.ErrMultipleAudioStreams):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ebmlsplit.ErrDemux):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
