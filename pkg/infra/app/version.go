package app

import (
	"strings"

	"github.com/kart-io/version"
)

// GetVersion 返回构建注入的 git 版本，未注入时为 "dev"。
// 该值会写入日志初始字段和追踪资源属性 service.version。
func GetVersion() string {
	v := strings.TrimSpace(version.Get().GitVersion)
	if v == "" || strings.Contains(v, "$Format") {
		return "dev"
	}
	return v
}
