package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docvector/pkg/infra/middleware/common"
	"github.com/kart-io/docvector/pkg/infra/tracing"
)

// LoggerConfig defines the config for the access log middleware.
type LoggerConfig struct {
	// SkipPaths 不记录访问日志的路径，例如健康检查
	SkipPaths []string
}

// Logger returns an access log middleware with default config.
func Logger() gin.HandlerFunc {
	return LoggerWithConfig(LoggerConfig{SkipPaths: []string{"/healthz"}})
}

// LoggerWithConfig returns an access log middleware.
// 5xx 以 Error 级别记录，4xx 以 Warn 级别记录。
func LoggerWithConfig(config LoggerConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"size", c.Writer.Size(),
			"request_id", common.GetRequestID(c.Request.Context()),
		}
		if org := common.GetOrganizationID(c.Request.Context()); org != "" {
			fields = append(fields, "organization_id", org)
		}
		if traceID := tracing.TraceIDFromContext(c.Request.Context()); traceID != "" {
			fields = append(fields, "trace_id", traceID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Errorw("HTTP request", fields...)
		case status >= 400:
			logger.Warnw("HTTP request", fields...)
		default:
			logger.Infow("HTTP request", fields...)
		}
	}
}
