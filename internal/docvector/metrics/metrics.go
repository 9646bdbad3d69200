// Package metrics 提供向量化服务的业务指标收集。
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// VectorMetrics 向量化服务业务指标。
type VectorMetrics struct {
	// 文档处理指标
	documentsProcessed uint64 // 成功处理的文档数
	documentsFailed    uint64 // 处理失败的文档数
	chunksStored       uint64 // 已写入的分块数
	chunksEmbedded     uint64 // 已生成向量的分块数
	chunksFailed       uint64 // 向量或写入失败的分块数
	tokensTotal        uint64 // 分块 token 总数
	processDuration    float64

	// 检索指标
	searchesTotal   uint64 // 总检索次数
	searchCacheHits uint64 // 缓存命中次数
	searchEmpty     uint64 // 无结果的检索次数
	searchErrors    uint64 // 检索错误次数
	searchTimeouts  uint64 // 检索超时次数
	searchDuration  float64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalVectorMetrics *VectorMetrics
	vectorMetricsOnce   sync.Once
)

// GetVectorMetrics 获取全局指标实例。
func GetVectorMetrics() *VectorMetrics {
	vectorMetricsOnce.Do(func() {
		globalVectorMetrics = New()
	})
	return globalVectorMetrics
}

// New 创建独立的指标实例。
func New() *VectorMetrics {
	return &VectorMetrics{startTime: time.Now()}
}

// ProcessRecord 单次文档处理的统计。
type ProcessRecord struct {
	Stored   int
	Embedded int
	Failed   int
	Tokens   int
	Duration time.Duration
	Err      error
}

// RecordProcessing 记录一次文档处理。
func (m *VectorMetrics) RecordProcessing(r ProcessRecord) {
	if r.Err != nil {
		atomic.AddUint64(&m.documentsFailed, 1)
	} else {
		atomic.AddUint64(&m.documentsProcessed, 1)
	}
	atomic.AddUint64(&m.chunksStored, uint64(max(r.Stored, 0)))
	atomic.AddUint64(&m.chunksEmbedded, uint64(max(r.Embedded, 0)))
	atomic.AddUint64(&m.chunksFailed, uint64(max(r.Failed, 0)))
	atomic.AddUint64(&m.tokensTotal, uint64(max(r.Tokens, 0)))

	m.durationMu.Lock()
	m.processDuration += r.Duration.Seconds()
	m.durationMu.Unlock()
}

// RecordSearch 记录一次检索。
func (m *VectorMetrics) RecordSearch(duration time.Duration, results int, cacheHit, timeout bool, err error) {
	atomic.AddUint64(&m.searchesTotal, 1)
	switch {
	case timeout:
		atomic.AddUint64(&m.searchTimeouts, 1)
		atomic.AddUint64(&m.searchErrors, 1)
	case err != nil:
		atomic.AddUint64(&m.searchErrors, 1)
	case cacheHit:
		atomic.AddUint64(&m.searchCacheHits, 1)
	}
	if err == nil && results == 0 {
		atomic.AddUint64(&m.searchEmpty, 1)
	}

	m.durationMu.Lock()
	m.searchDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// Snapshot 指标快照，供 /v1/stats 返回。
type Snapshot struct {
	Processing    ProcessingSnapshot `json:"processing"`
	Search        SearchSnapshot     `json:"search"`
	UptimeSeconds float64            `json:"uptime_seconds"`
}

// ProcessingSnapshot 文档处理指标快照。
type ProcessingSnapshot struct {
	DocumentsProcessed uint64  `json:"documents_processed"`
	DocumentsFailed    uint64  `json:"documents_failed"`
	ChunksStored       uint64  `json:"chunks_stored"`
	ChunksEmbedded     uint64  `json:"chunks_embedded"`
	ChunksFailed       uint64  `json:"chunks_failed"`
	TokensTotal        uint64  `json:"tokens_total"`
	AvgDurationSecs    float64 `json:"avg_duration_secs"`
}

// SearchSnapshot 检索指标快照。
type SearchSnapshot struct {
	Total           uint64  `json:"total"`
	CacheHits       uint64  `json:"cache_hits"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	Empty           uint64  `json:"empty"`
	Errors          uint64  `json:"errors"`
	Timeouts        uint64  `json:"timeouts"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`
}

// Snapshot 返回当前指标。
func (m *VectorMetrics) Snapshot() Snapshot {
	m.durationMu.Lock()
	processDuration := m.processDuration
	searchDuration := m.searchDuration
	startTime := m.startTime
	m.durationMu.Unlock()

	processed := atomic.LoadUint64(&m.documentsProcessed)
	failed := atomic.LoadUint64(&m.documentsFailed)
	searches := atomic.LoadUint64(&m.searchesTotal)
	hits := atomic.LoadUint64(&m.searchCacheHits)

	return Snapshot{
		Processing: ProcessingSnapshot{
			DocumentsProcessed: processed,
			DocumentsFailed:    failed,
			ChunksStored:       atomic.LoadUint64(&m.chunksStored),
			ChunksEmbedded:     atomic.LoadUint64(&m.chunksEmbedded),
			ChunksFailed:       atomic.LoadUint64(&m.chunksFailed),
			TokensTotal:        atomic.LoadUint64(&m.tokensTotal),
			AvgDurationSecs:    ratio(processDuration, processed+failed),
		},
		Search: SearchSnapshot{
			Total:           searches,
			CacheHits:       hits,
			CacheHitRate:    ratio(float64(hits), searches),
			Empty:           atomic.LoadUint64(&m.searchEmpty),
			Errors:          atomic.LoadUint64(&m.searchErrors),
			Timeouts:        atomic.LoadUint64(&m.searchTimeouts),
			AvgDurationSecs: ratio(searchDuration, searches),
		},
		UptimeSeconds: time.Since(startTime).Seconds(),
	}
}

func ratio(v float64, n uint64) float64 {
	if n == 0 {
		return 0
	}
	return v / float64(n)
}

// Reset 重置所有指标（仅用于测试）。
func (m *VectorMetrics) Reset() {
	for _, c := range []*uint64{
		&m.documentsProcessed, &m.documentsFailed, &m.chunksStored, &m.chunksEmbedded,
		&m.chunksFailed, &m.tokensTotal, &m.searchesTotal, &m.searchCacheHits,
		&m.searchEmpty, &m.searchErrors, &m.searchTimeouts,
	} {
		atomic.StoreUint64(c, 0)
	}

	m.durationMu.Lock()
	m.processDuration = 0
	m.searchDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
