package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Logger 日志中间件
// /health 与 /ready 的探活请求不记录
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if path == "/health" || path == "/ready" {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		// SSE 响应的耗时覆盖整个流式中继过程
		streamed := strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")

		event := log.Info()
		if status >= 400 {
			event = log.Warn()
		}
		if status >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Dur("latency", latency).
			Bool("streamed", streamed).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}
