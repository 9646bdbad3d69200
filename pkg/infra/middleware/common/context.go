// Package common 存放中间件、handler 与响应层共用的请求头和上下文键。
package common

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	// HeaderXRequestID 请求 ID，缺省时由服务端生成并回写。
	HeaderXRequestID = "X-Request-ID"
	// HeaderOrganizationID 调用方所属组织，文档与检索结果按它隔离。
	HeaderOrganizationID = "X-Organization-ID"
)

// ContextKeyRequestID 是请求 ID 在 gin.Context 中的键。
const ContextKeyRequestID = "request_id"

type (
	requestIDKey      struct{}
	organizationIDKey struct{}
)

// GetRequestID 返回 ctx 中的请求 ID，没有时为空字符串。
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithRequestID 把请求 ID 写入 ctx。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetOrganizationID 返回 ctx 中的组织 ID。
func GetOrganizationID(ctx context.Context) string {
	return stringValue(ctx, organizationIDKey{})
}

// WithOrganizationID 把去除首尾空白后的组织 ID 写入 ctx，空值不写入。
func WithOrganizationID(ctx context.Context, orgID string) context.Context {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, organizationIDKey{}, orgID)
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// GenerateRequestID 生成按时间有序的 ULID。
func GenerateRequestID() string {
	return ulid.Make().String()
}
