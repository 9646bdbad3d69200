package biz

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/pkg/errors"
)

// paragraphBreak 匹配空行分隔：换行 + 可选空白 + 换行。
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// paragraphJoiner 段落合并时使用的分隔符。
const paragraphJoiner = "\n\n"

// retractWindow 字符模式下允许回退到空白处的窗口尾部比例。
const retractWindow = 0.2

// ChunkOptions 分块配置。
type ChunkOptions struct {
	// ChunkSize 单个分块的最大字符数（按 rune 计）。
	ChunkSize int `json:"chunk_size"`
	// ChunkOverlap 相邻分块重叠的字符数。
	ChunkOverlap int `json:"chunk_overlap"`
	// PreserveParagraphs 是否按段落边界分块。
	PreserveParagraphs bool `json:"preserve_paragraphs"`
	// SplitOversizedParagraphs 超长段落是否再按字符窗口切分。
	SplitOversizedParagraphs bool `json:"split_oversized_paragraphs"`
}

// Validate 校验分块配置。
func (o ChunkOptions) Validate() error {
	switch {
	case o.ChunkSize <= 0:
		return errors.ErrInvalidConfiguration.WithMessagef("chunk_size must be positive, got %d", o.ChunkSize)
	case o.ChunkOverlap < 0:
		return errors.ErrInvalidConfiguration.WithMessagef("chunk_overlap must not be negative, got %d", o.ChunkOverlap)
	case o.ChunkOverlap >= o.ChunkSize:
		return errors.ErrInvalidConfiguration.WithMessagef("chunk_overlap (%d) must be smaller than chunk_size (%d)", o.ChunkOverlap, o.ChunkSize)
	}
	return nil
}

// RawChunk 分块结果，尚未生成向量。
type RawChunk struct {
	Index    int                 `json:"index"`
	Content  string              `json:"content"`
	Metadata model.ChunkMetadata `json:"metadata"`
}

// Chunk 将文本切分为有序分块。
// 空白文本返回空切片；配置非法返回 ErrInvalidConfiguration。
func Chunk(text string, opts ChunkOptions) ([]RawChunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c := &chunker{opts: opts}
	if opts.PreserveParagraphs {
		c.paragraphs(text)
	} else {
		c.characters([]rune(text), 0)
	}
	return c.out, nil
}

type chunker struct {
	opts ChunkOptions
	out  []RawChunk
}

func (c *chunker) emit(content string, chunkType string, start, end int) {
	length := len([]rune(content))
	c.out = append(c.out, RawChunk{
		Index:   len(c.out),
		Content: content,
		Metadata: model.ChunkMetadata{
			ChunkType:   chunkType,
			StartOffset: start,
			EndOffset:   end,
			Length:      length,
		},
	})
}

// span 段落在原文中的位置（rune 偏移，左闭右开）。
type span struct {
	text       []rune
	start, end int
}

// splitParagraphs 按空行切分并记录每段在原文中的偏移。
func splitParagraphs(text string) []span {
	var spans []span
	// 正则按字节定位；游标只向前推进，整体为线性扫描
	cursorByte, cursorRune := 0, 0
	byteToRune := func(b int) int {
		cursorRune += utf8.RuneCountInString(text[cursorByte:b])
		cursorByte = b
		return cursorRune
	}

	last := 0
	emit := func(from, to int) {
		raw := text[from:to]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		lead := strings.Index(raw, trimmed)
		start := byteToRune(from + lead)
		runes := []rune(trimmed)
		spans = append(spans, span{
			text:  runes,
			start: start,
			end:   start + len(runes),
		})
	}
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		emit(last, loc[0])
		last = loc[1]
	}
	emit(last, len(text))
	return spans
}

func (c *chunker) paragraphs(text string) {
	size, overlap := c.opts.ChunkSize, c.opts.ChunkOverlap

	var buf []rune
	bufStart, bufEnd := 0, 0

	flush := func() {
		if len(buf) > 0 {
			c.emit(string(buf), model.ChunkTypeParagraph, bufStart, bufEnd)
		}
	}

	for _, p := range splitParagraphs(text) {
		if c.opts.SplitOversizedParagraphs && len(p.text) > size {
			flush()
			buf = nil
			c.characters(p.text, p.start)
			continue
		}

		if len(buf) == 0 {
			buf = append([]rune(nil), p.text...)
			bufStart, bufEnd = p.start, p.end
			continue
		}

		if len(buf)+len(paragraphJoiner)+len(p.text) <= size {
			buf = append(append(buf, []rune(paragraphJoiner)...), p.text...)
			bufEnd = p.end
			continue
		}

		flush()
		if overlap > 0 && len(buf) > overlap {
			tail := strings.TrimLeftFunc(string(buf[len(buf)-overlap:]), unicode.IsSpace)
			tailRunes := []rune(tail)
			next := make([]rune, 0, len(tailRunes)+len(paragraphJoiner)+len(p.text))
			next = append(next, tailRunes...)
			next = append(next, []rune(paragraphJoiner)...)
			buf = append(next, p.text...)
			bufStart = bufEnd - len(tailRunes)
		} else {
			buf = append([]rune(nil), p.text...)
			bufStart = p.start
		}
		bufEnd = p.end
	}
	flush()
}

// characters 按固定窗口切分 runes，offset 为 runes 在原文中的起始偏移。
func (c *chunker) characters(runes []rune, offset int) {
	size, overlap := c.opts.ChunkSize, c.opts.ChunkOverlap
	n := len(runes)
	floor := size - int(float64(size)*retractWindow)

	for start := 0; start < n; {
		end := min(start+size, n)
		if end < n && !unicode.IsSpace(runes[end]) && !unicode.IsSpace(runes[end-1]) {
			// 窗口边界落在单词中间，回退到尾部 20% 内最近的空白
			for j := end - 1; j > start && j >= start+floor; j-- {
				if unicode.IsSpace(runes[j]) {
					end = j
					break
				}
			}
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			c.emit(content, model.ChunkTypeCharacter, offset+start, offset+end)
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
}
