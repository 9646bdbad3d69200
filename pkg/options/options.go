// Package options 收纳 docvector 各组件的配置项。每个子包负责一组 flag，
// 名称形如 "postgres.host"、"cache.redis.port"，同时作为配置文件键和环境变量名。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join 把前缀用 "." 连接并追加结尾的 "."，空前缀会被跳过。
//
//	Join("cache", "redis") == "cache.redis."
func Join(prefixes ...string) string {
	var b strings.Builder
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('.')
	}
	return b.String()
}

// IOptions 是每组配置都要实现的接口。
type IOptions interface {
	// Validate 返回全部校验错误，由调用方聚合。
	Validate() []error
	// AddFlags 以给定前缀注册 flag。
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
