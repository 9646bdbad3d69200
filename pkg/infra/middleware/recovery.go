// Package middleware provides the gin middleware chain shared by docvector servers.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/middleware/common"
	"github.com/kart-io/docvector/pkg/utils/response"
)

// PanicHandler 定义 panic 处理器类型。
type PanicHandler func(c *gin.Context, err interface{}, stack []byte)

// Recovery returns a middleware that recovers from panics.
func Recovery() gin.HandlerFunc {
	return RecoveryWithHandler(nil)
}

// RecoveryWithHandler 返回 Recovery 中间件，onPanic 可选，用于告警等额外处理。
// 完整堆栈只写入日志，不返回给客户端。
func RecoveryWithHandler(onPanic PanicHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Errorw("panic recovered",
					"panic", r,
					"stack_trace", string(stack),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"request_id", common.GetRequestID(c.Request.Context()),
				)
				if onPanic != nil {
					onPanic(c, r, stack)
				}
				response.Fail(c, errors.ErrPanic.WithMessage(fmt.Sprintf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}
