package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors 返回读取当前指标的 Prometheus 采集器，取值在每次抓取时计算。
func (m *VectorMetrics) Collectors(namespace, subsystem string) []prometheus.Collector {
	counter := func(name, help string, v *uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(atomic.LoadUint64(v)) })
	}
	seconds := func(name, help string, read func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, read)
	}
	gauge := func(name, help string, read func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, read)
	}

	return []prometheus.Collector{
		// 文档处理指标
		counter("documents_processed_total", "Documents vectorized successfully.", &m.documentsProcessed),
		counter("documents_failed_total", "Documents whose vectorization failed.", &m.documentsFailed),
		counter("chunks_stored_total", "Chunks written to the store.", &m.chunksStored),
		counter("chunks_embedded_total", "Chunks with a stored embedding.", &m.chunksEmbedded),
		counter("chunks_failed_total", "Chunks that failed to embed or store.", &m.chunksFailed),
		counter("tokens_total", "Tokens across all stored chunks.", &m.tokensTotal),
		seconds("process_duration_seconds_total", "Total document processing time.", m.processSeconds),

		// 检索指标
		counter("searches_total", "Similarity searches served.", &m.searchesTotal),
		counter("search_cache_hits_total", "Searches answered from cache.", &m.searchCacheHits),
		counter("search_empty_total", "Searches with no result above the threshold.", &m.searchEmpty),
		counter("search_errors_total", "Searches that returned an error.", &m.searchErrors),
		counter("search_timeouts_total", "Searches that hit the deadline.", &m.searchTimeouts),
		seconds("search_duration_seconds_total", "Total search time.", m.searchSeconds),
		gauge("search_cache_hit_rate", "Search cache hit rate (0-1).", func() float64 {
			return m.Snapshot().Search.CacheHitRate
		}),

		gauge("uptime_seconds", "Service uptime in seconds.", func() float64 {
			return m.Snapshot().UptimeSeconds
		}),
	}
}

// Registry 创建独立的 Registry，包含业务指标以及 Go 运行时和进程指标。
func (m *VectorMetrics) Registry(namespace, subsystem string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.Collectors(namespace, subsystem)...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 /metrics 使用的 HTTP 处理器。
func (m *VectorMetrics) Handler(namespace, subsystem string) http.Handler {
	return promhttp.HandlerFor(m.Registry(namespace, subsystem), promhttp.HandlerOpts{})
}

func (m *VectorMetrics) processSeconds() float64 {
	m.durationMu.Lock()
	defer m.durationMu.Unlock()
	return m.processDuration
}

func (m *VectorMetrics) searchSeconds() float64 {
	m.durationMu.Lock()
	defer m.durationMu.Unlock()
	return m.searchDuration
}
