package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// LoggerKey for storing logger in Gin context
const LoggerKey = "logger"

func Logging(baseLogger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		logger := baseLogger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)
		c.Set(LoggerKey, logger)

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.Int("size", c.Writer.Size()),
		}
		if code := ErrorCode(c); code != "" {
			attrs = append(attrs, slog.String("errorCode", code))
		}
		// Handlers may have enriched the logger.
		GetLogger(c).Log(c.Request.Context(), level, "request completed", attrs...)
	}
}

// With adds attributes to the request logger for the rest of the request.
func With(c *gin.Context, args ...any) *slog.Logger {
	logger := GetLogger(c).With(args...)
	c.Set(LoggerKey, logger)
	return logger
}

func GetLogger(c *gin.Context) *slog.Logger {
	if logger, exists := c.Get(LoggerKey); exists {
		return logger.(*slog.Logger)
	}
	return slog.Default()
}
