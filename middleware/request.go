package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iammeizu/voicesplit/metrics"
	"github.com/iammeizu/voicesplit/observability"
)

const RequestIDHeader = "request_id"

// Logger puts logger in the request context for the handlers that follow.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Request = ctx.Request.WithContext(observability.ContextWithLogger(ctx.Request.Context(), logger))
		ctx.Next()
	}
}

// RequestIDMiddleWare makes sure every request carries a request id, taken
// from the request_id header when the client sent one.
func RequestIDMiddleWare(ctx *gin.Context) {
	id := ctx.GetHeader(RequestIDHeader)
	if id == "" {
		id = GenRequestId()
		ctx.Request.Header.Set(RequestIDHeader, id)
	}
	ctx.Set(RequestIDHeader, id)
	reqCtx := observability.ContextWithRequestID(ctx.Request.Context(), id)
	logger := observability.WithRequestID(observability.LoggerFromContext(reqCtx), id)
	ctx.Request = ctx.Request.WithContext(observability.ContextWithLogger(reqCtx, logger))
	ctx.Header(RequestIDHeader, id)

	ctx.Next()
}

// RequestID returns the id assigned by RequestIDMiddleWare.
func RequestID(ctx *gin.Context) string {
	return ctx.GetString(RequestIDHeader)
}

// AccessLog logs every request with the request logger and records it in m,
// which may be nil.
func AccessLog(m *metrics.Metrics) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		took := time.Since(start)

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := ctx.Writer.Status()

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		observability.LoggerFromContext(ctx.Request.Context()).LogAttrs(ctx.Request.Context(), level, "request",
			slog.String("method", ctx.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int("bytes", ctx.Writer.Size()),
			slog.Duration("duration", took))

		if m != nil {
			m.HTTPRequests.WithLabelValues(ctx.Request.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(ctx.Request.Method, path).Observe(took.Seconds())
		}
	}
}
