package server

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/metrics"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates or mints X-Request-ID and stores it, with a
// request-scoped logger, on the request context.
func RequestID(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if rid := c.GetHeader(headerRequestID); rid != "" {
			ctx = common.WithRequestID(ctx, rid)
		}
		ctx, rid := common.EnsureRequestID(ctx)
		ctx = common.WithLogger(ctx, logger.With("req_id", rid))
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerRequestID, rid)
		c.Next()
	}
}

// AccessLog logs each request and records it in the API metrics.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordAPIRequest(c.Request.Method, path, status, elapsed)

		log := common.LoggerFromContext(c.Request.Context(), logger)
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"elapsed_ms", elapsed.Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			log.Error("http.request", attrs...)
		case status >= 400:
			log.Warn("http.request", attrs...)
		default:
			log.Debug("http.request", attrs...)
		}
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{headerRequestID, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
