// Package response 定义 docvector HTTP 接口统一的 JSON 信封：
//
//	{"code":0,"message":"success","data":{...},"request_id":"...","timestamp":1700000000000}
//
// code 为 0 表示成功，其余取值见 pkg/errors。
package response

import (
	"net/http"

	"github.com/kart-io/docvector/pkg/errors"
)

// Response 是所有接口的响应体。
type Response struct {
	Code      int         `json:"code"`
	HTTPCode  int         `json:"http_code,omitempty"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	// Timestamp 为 Unix 毫秒
	Timestamp int64 `json:"timestamp,omitempty"`
}

// PageData 是分页列表的 data 部分，文档列表接口使用。
type PageData struct {
	List       interface{} `json:"list"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// Success 构造成功响应。
func Success(data interface{}) *Response {
	return &Response{HTTPCode: http.StatusOK, Message: "success", Data: data}
}

// ErrWithLang 按语言构造错误响应，e 为 nil 时视为成功。
func ErrWithLang(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:     e.Code,
		HTTPCode: e.HTTPStatus(),
		Message:  e.Message(lang),
	}
}

// Page 构造分页响应，total_pages 向上取整。
func Page(list interface{}, total int64, page, pageSize int) *Response {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Success(&PageData{
		List:       list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pages,
	})
}

// HTTPStatus 返回写回客户端的 HTTP 状态码。
func (r *Response) HTTPStatus() int {
	switch {
	case r.HTTPCode != 0:
		return r.HTTPCode
	case r.Code == 0:
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}
	if status, ok := categoryStatus[errors.GetCategory(r.Code)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// categoryStatus 是未注册错误码按分类推断的状态码。
var categoryStatus = map[int]int{
	errors.CategoryRequest:    http.StatusBadRequest,
	errors.CategoryAuth:       http.StatusUnauthorized,
	errors.CategoryPermission: http.StatusForbidden,
	errors.CategoryResource:   http.StatusNotFound,
	errors.CategoryConflict:   http.StatusConflict,
	errors.CategoryRateLimit:  http.StatusTooManyRequests,
	errors.CategoryTimeout:    http.StatusGatewayTimeout,
	errors.CategoryNetwork:    http.StatusServiceUnavailable,
}
