package biz

import (
	"github.com/kart-io/logger"
	"github.com/pkoukk/tiktoken-go"

	"github.com/kart-io/docvector/internal/pkg/textutil"
)

// allSpecial 允许文本中出现的特殊 token 原样编码，避免 tiktoken 因特殊标记拒绝输入。
var allSpecial = []string{"all"}

// TokenCounter 统计文本 token 数。
// 编码加载失败时退化为 ceil(runes/4) 估算。
type TokenCounter struct {
	encoding string
	tok      *tiktoken.Tiktoken
}

// NewTokenCounter 加载指定的 tiktoken 编码。
func NewTokenCounter(encoding string) *TokenCounter {
	tok, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warnw("Failed to load token encoding, falling back to estimate",
			"encoding", encoding,
			"error", err.Error(),
		)
		return &TokenCounter{encoding: encoding}
	}
	return &TokenCounter{encoding: encoding, tok: tok}
}

// NewEstimateCounter 返回只做估算的计数器。
func NewEstimateCounter() *TokenCounter {
	return &TokenCounter{}
}

// Exact 报告是否使用真实编码计数。
func (c *TokenCounter) Exact() bool {
	return c.tok != nil
}

// Count 返回 text 的 token 数。
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.tok != nil {
		return len(c.tok.Encode(text, allSpecial, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens 以 4 个字符约等于 1 个 token 估算，向上取整。
func EstimateTokens(text string) int {
	return (textutil.RuneLen(text) + 3) / 4
}
