package validator

import (
	"strings"
)

// FieldError 描述单个字段的校验失败，会原样写入响应的 data.errors。
type FieldError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value,omitempty"`
	Param   string      `json:"param,omitempty"`
	Message string      `json:"message"`
}

// ValidationErrors 是一次校验的全部失败字段，按结构体字段顺序排列。
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError 构造只含一个字段错误的结果。
func NewValidationError(field, tag, message string) *ValidationErrors {
	return &ValidationErrors{Errors: []FieldError{{Field: field, Tag: tag, Message: message}}}
}

// Error 实现 error 接口，把所有提示用分号连接。
func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return ""
	}
	msgs := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		msgs[i] = fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// HasErrors 报告是否存在字段错误，nil 接收者安全。
func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// First 返回第一条提示，作为响应的 message。
func (v *ValidationErrors) First() string {
	if !v.HasErrors() {
		return ""
	}
	return v.Errors[0].Message
}

// ForField 返回指定字段（json 名）的全部提示。
func (v *ValidationErrors) ForField(field string) []string {
	if v == nil {
		return nil
	}
	var msgs []string
	for _, fe := range v.Errors {
		if fe.Field == field {
			msgs = append(msgs, fe.Message)
		}
	}
	return msgs
}

// ToMap 生成响应 data 字段，没有错误时返回 nil。
func (v *ValidationErrors) ToMap() map[string]interface{} {
	if !v.HasErrors() {
		return nil
	}
	return map[string]interface{}{
		"errors": v.Errors,
		"count":  len(v.Errors),
	}
}
