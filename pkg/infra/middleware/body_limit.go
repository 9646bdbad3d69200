package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/utils/response"
)

// defaultMaxBodySize 默认请求体上限 4MB
const defaultMaxBodySize = 4 * 1024 * 1024

// BodyLimit 返回一个请求体大小限制中间件。
//
// 工作原理：
//  1. Content-Length 超过限制时立即拒绝
//  2. 使用 http.MaxBytesReader 限制实际读取的字节数
func BodyLimit(maxSize int64) gin.HandlerFunc {
	if maxSize <= 0 {
		maxSize = defaultMaxBodySize
	}

	return func(c *gin.Context) {
		req := c.Request
		if req.ContentLength > maxSize {
			logger.Warnw("request body too large",
				"path", req.URL.Path,
				"content_length", req.ContentLength,
				"max_size", maxSize,
			)
			response.Fail(c, errors.ErrRequestTooLarge)
			c.Abort()
			return
		}

		req.Body = http.MaxBytesReader(c.Writer, req.Body, maxSize)
		c.Next()
	}
}
