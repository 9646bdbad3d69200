// Package vector provides chunking, embedding and search options.
package vector

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docvector/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Chunk failure policies.
const (
	FailurePolicySkip  = "skip"
	FailurePolicyAbort = "abort"
)

// Options contains the vectorization pipeline configuration.
type Options struct {
	// ChunkSize 每个分块的最大字符数。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap 相邻分块之间重叠的字符数。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// PreserveParagraphs 是否按段落分块。
	PreserveParagraphs bool `json:"preserve-paragraphs" mapstructure:"preserve-paragraphs"`

	// SplitOversizedParagraphs 超长段落是否按字符窗口再切分。
	SplitOversizedParagraphs bool `json:"split-oversized-paragraphs" mapstructure:"split-oversized-paragraphs"`

	// EmbeddingDim 向量维度。
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// EmbedConcurrency 并发向量请求数。
	EmbedConcurrency int `json:"embed-concurrency" mapstructure:"embed-concurrency"`

	// EmbedDelay 相邻两次向量请求的最小间隔。
	EmbedDelay time.Duration `json:"embed-delay" mapstructure:"embed-delay"`

	// OnChunkFailure 单个分块失败时的处理策略: skip 或 abort。
	OnChunkFailure string `json:"on-chunk-failure" mapstructure:"on-chunk-failure"`

	// TopK 默认返回的检索结果数量。
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxTopK 单次检索允许的最大结果数量。
	MaxTopK int `json:"max-top-k" mapstructure:"max-top-k"`

	// ScoreThreshold 默认相似度阈值。
	ScoreThreshold float64 `json:"score-threshold" mapstructure:"score-threshold"`

	// SearchTimeout 单次检索超时时间。
	SearchTimeout time.Duration `json:"search-timeout" mapstructure:"search-timeout"`

	// TokenEncoding tiktoken 编码名称。
	TokenEncoding string `json:"token-encoding" mapstructure:"token-encoding"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		PreserveParagraphs: true,
		EmbeddingDim:       512,
		EmbedConcurrency:   4,
		EmbedDelay:         100 * time.Millisecond,
		OnChunkFailure:     FailurePolicySkip,
		TopK:               5,
		MaxTopK:            50,
		ScoreThreshold:     0.7,
		SearchTimeout:      30 * time.Second,
		TokenEncoding:      "cl100k_base",
	}
}

// AddFlags adds flags for vector options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "vector."
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Maximum chunk length in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Characters shared between consecutive chunks.")
	fs.BoolVar(&o.PreserveParagraphs, p+"preserve-paragraphs", o.PreserveParagraphs, "Chunk on paragraph boundaries.")
	fs.BoolVar(&o.SplitOversizedParagraphs, p+"split-oversized-paragraphs", o.SplitOversizedParagraphs, "Split paragraphs longer than chunk-size into character windows.")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.EmbedConcurrency, p+"embed-concurrency", o.EmbedConcurrency, "Number of concurrent embedding requests.")
	fs.DurationVar(&o.EmbedDelay, p+"embed-delay", o.EmbedDelay, "Minimum interval between embedding requests.")
	fs.StringVar(&o.OnChunkFailure, p+"on-chunk-failure", o.OnChunkFailure, "Chunk failure policy (skip, abort).")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Default number of search results.")
	fs.IntVar(&o.MaxTopK, p+"max-top-k", o.MaxTopK, "Maximum number of search results per query.")
	fs.Float64Var(&o.ScoreThreshold, p+"score-threshold", o.ScoreThreshold, "Default minimum cosine similarity.")
	fs.DurationVar(&o.SearchTimeout, p+"search-timeout", o.SearchTimeout, "Search request timeout.")
	fs.StringVar(&o.TokenEncoding, p+"token-encoding", o.TokenEncoding, "tiktoken encoding used for token counts.")
}

// Validate validates the vector options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("vector.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("vector.chunk-overlap must not be negative"))
	}
	if o.ChunkSize > 0 && o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("vector.chunk-overlap must be smaller than vector.chunk-size"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("vector.embedding-dim must be positive"))
	}
	if o.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("vector.embed-concurrency must be positive"))
	}
	if o.EmbedDelay < 0 {
		errs = append(errs, fmt.Errorf("vector.embed-delay must not be negative"))
	}
	if o.OnChunkFailure != FailurePolicySkip && o.OnChunkFailure != FailurePolicyAbort {
		errs = append(errs, fmt.Errorf("vector.on-chunk-failure must be %q or %q", FailurePolicySkip, FailurePolicyAbort))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("vector.top-k must be positive"))
	}
	if o.MaxTopK < o.TopK {
		errs = append(errs, fmt.Errorf("vector.max-top-k must not be smaller than vector.top-k"))
	}
	if o.ScoreThreshold < -1 || o.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("vector.score-threshold must be between -1 and 1"))
	}
	if o.SearchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("vector.search-timeout must be positive"))
	}
	return errs
}

// Complete completes the vector options with defaults.
func (o *Options) Complete() error {
	if o.TokenEncoding == "" {
		o.TokenEncoding = "cl100k_base"
	}
	if o.MaxTopK == 0 {
		o.MaxTopK = 50
	}
	return nil
}
