package llm

import "time"

// ConfigMap 是传给供应商工厂的配置，键名与 ProviderOptions.ToConfigMap 一致。
// 取值方法在键缺失、类型不符或为零值时保留 dst 原值。
type ConfigMap map[string]any

// String 读取非空字符串。
func (m ConfigMap) String(key string, dst *string) {
	if v, ok := m[key].(string); ok && v != "" {
		*dst = v
	}
}

// PositiveInt 读取大于零的整数。
func (m ConfigMap) PositiveInt(key string, dst *int) {
	if v, ok := m[key].(int); ok && v > 0 {
		*dst = v
	}
}

// NonNegativeInt 读取大于等于零的整数，重试次数允许为 0。
func (m ConfigMap) NonNegativeInt(key string, dst *int) {
	if v, ok := m[key].(int); ok && v >= 0 {
		*dst = v
	}
}

// Duration 读取正的时长。
func (m ConfigMap) Duration(key string, dst *time.Duration) {
	if v, ok := m[key].(time.Duration); ok && v > 0 {
		*dst = v
	}
}
