// Package textutil 提供文本与向量处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// 向量校验错误。
var (
	ErrEmptyVector = errors.New("向量为空")
	ErrZeroNorm    = errors.New("向量范数为零")
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，维度不一致或任一向量为零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ValidateVector 检查向量维度，并拒绝空向量、零向量以及包含 NaN/Inf 的向量。
// dim 为 0 时不检查维度。
func ValidateVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", dim, len(vec))
	}

	var sum float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("向量第 %d 维不是有限值: %v", i, v)
		}
		sum += f * f
	}
	if sum == 0 {
		return ErrZeroNorm
	}
	return nil
}

// Normalize 返回 vec 的 L2 归一化副本。
func Normalize(vec []float32) ([]float32, error) {
	if err := ValidateVector(vec, 0); err != nil {
		return nil, err
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// RuneLen 返回字符串的 Unicode 字符数。
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// HashKey 将各部分以 0x00 分隔后计算 SHA-256，返回十六进制串。
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
