package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docvector/pkg/infra/middleware/common"
)

// HeaderXRequestID 同 common.HeaderXRequestID。
const HeaderXRequestID = common.HeaderXRequestID

// maxRequestIDLen 超过该长度的上游请求 ID 会被替换，避免日志被超长值污染。
const maxRequestIDLen = 128

// RequestIDConfig RequestID 中间件配置。
type RequestIDConfig struct {
	// Header 默认 X-Request-ID
	Header string
	// Generator 默认生成 ULID
	Generator func() string
}

// RequestID 为每个请求分配请求 ID，并把组织 ID 一并写入请求上下文。
// 请求 ID 会回写到响应头，同时放入 gin.Context 的 common.ContextKeyRequestID。
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig 使用自定义配置创建 RequestID 中间件。
func RequestIDWithConfig(config RequestIDConfig) gin.HandlerFunc {
	if config.Header == "" {
		config.Header = common.HeaderXRequestID
	}
	if config.Generator == nil {
		config.Generator = common.GenerateRequestID
	}

	return func(c *gin.Context) {
		id := c.GetHeader(config.Header)
		if !validRequestID(id) {
			id = config.Generator()
		}

		c.Header(config.Header, id)
		c.Set(common.ContextKeyRequestID, id)

		ctx := common.WithRequestID(c.Request.Context(), id)
		ctx = common.WithOrganizationID(ctx, c.GetHeader(common.HeaderOrganizationID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// validRequestID 只接受可打印 ASCII 且不超长的请求 ID。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
