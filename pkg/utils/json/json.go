// Package json 是 docvector 统一使用的 JSON 编解码入口：amd64/arm64 上走 sonic，
// 其余架构回退到 encoding/json。
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// Encoder 流式编码器。
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder 流式解码器。
type Decoder interface {
	Decode(v interface{}) error
}

// sonicSupported 为 false 时全部走标准库。
var sonicSupported = runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"

// api 与 encoding/json 行为一致：转义 HTML，map 键排序。
var api = sonic.ConfigStd

// Marshal 编码 v。
func Marshal(v interface{}) ([]byte, error) {
	if sonicSupported {
		return api.Marshal(v)
	}
	return stdjson.Marshal(v)
}

// Unmarshal 解码 data 到 v。
func Unmarshal(data []byte, v interface{}) error {
	if sonicSupported {
		return api.Unmarshal(data, v)
	}
	return stdjson.Unmarshal(data, v)
}

// NewEncoder 返回写入 w 的编码器。
func NewEncoder(w io.Writer) Encoder {
	if sonicSupported {
		return api.NewEncoder(w)
	}
	return stdjson.NewEncoder(w)
}

// NewDecoder 返回读取 r 的解码器。
func NewDecoder(r io.Reader) Decoder {
	if sonicSupported {
		return api.NewDecoder(r)
	}
	return stdjson.NewDecoder(r)
}

// UsingSonic 报告当前是否使用 sonic。
func UsingSonic() bool {
	return sonicSupported
}
