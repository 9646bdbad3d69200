package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVectorMetrics(t *testing.T) {
	assert.Same(t, GetVectorMetrics(), GetVectorMetrics(), "应该返回同一个单例实例")
}

func TestRecordProcessing(t *testing.T) {
	m := New()

	m.RecordProcessing(ProcessRecord{Stored: 10, Embedded: 8, Failed: 2, Tokens: 400, Duration: time.Second})
	m.RecordProcessing(ProcessRecord{Failed: 3, Duration: time.Second, Err: assert.AnError})

	s := m.Snapshot().Processing
	assert.Equal(t, uint64(1), s.DocumentsProcessed)
	assert.Equal(t, uint64(1), s.DocumentsFailed)
	assert.Equal(t, uint64(10), s.ChunksStored)
	assert.Equal(t, uint64(8), s.ChunksEmbedded)
	assert.Equal(t, uint64(5), s.ChunksFailed)
	assert.Equal(t, uint64(400), s.TokensTotal)
	assert.InDelta(t, 1.0, s.AvgDurationSecs, 0.001)
}

func TestRecordSearch(t *testing.T) {
	m := New()

	m.RecordSearch(100*time.Millisecond, 3, false, false, nil)
	m.RecordSearch(10*time.Millisecond, 3, true, false, nil)
	m.RecordSearch(10*time.Millisecond, 0, false, false, nil)
	m.RecordSearch(time.Second, 0, false, true, assert.AnError)
	m.RecordSearch(time.Millisecond, 0, false, false, assert.AnError)

	s := m.Snapshot().Search
	assert.Equal(t, uint64(5), s.Total)
	assert.Equal(t, uint64(1), s.CacheHits)
	assert.InDelta(t, 0.2, s.CacheHitRate, 0.0001)
	assert.Equal(t, uint64(1), s.Empty, "错误不计入空结果")
	assert.Equal(t, uint64(2), s.Errors)
	assert.Equal(t, uint64(1), s.Timeouts)
}

func gatherValues(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return values
}

func TestRegistry(t *testing.T) {
	m := New()
	m.RecordProcessing(ProcessRecord{Stored: 4, Embedded: 4, Tokens: 12, Duration: time.Second})
	m.RecordSearch(time.Millisecond, 1, true, false, nil)

	values := gatherValues(t, m.Registry("docvector", "vector"))
	assert.Equal(t, 4.0, values["docvector_vector_chunks_stored_total"])
	assert.Equal(t, 12.0, values["docvector_vector_tokens_total"])
	assert.Equal(t, 1.0, values["docvector_vector_searches_total"])
	assert.InDelta(t, 1.0, values["docvector_vector_process_duration_seconds_total"], 1e-9)
	assert.Equal(t, 1.0, values["docvector_vector_search_cache_hit_rate"])
	assert.Contains(t, values, "go_goroutines", "应包含 Go 运行时指标")

	// 采集器在抓取时读取最新值
	m.RecordProcessing(ProcessRecord{Stored: 1})
	values = gatherValues(t, m.Registry("docvector", ""))
	assert.Equal(t, 5.0, values["docvector_chunks_stored_total"])
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordProcessing(ProcessRecord{Stored: 2})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler("docvector", "").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# TYPE docvector_chunks_stored_total counter")
	assert.True(t, strings.Contains(w.Body.String(), "docvector_chunks_stored_total 2"))
}

func TestReset(t *testing.T) {
	m := New()
	m.RecordProcessing(ProcessRecord{Stored: 1})
	m.RecordSearch(time.Millisecond, 1, true, false, nil)
	m.Reset()

	s := m.Snapshot()
	assert.Zero(t, s.Processing.ChunksStored)
	assert.Zero(t, s.Search.Total)
	assert.Zero(t, s.Search.CacheHitRate)
}

func TestConcurrentRecording(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordProcessing(ProcessRecord{Stored: 2, Embedded: 2})
			m.RecordSearch(time.Millisecond, 1, false, false, nil)
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, uint64(100), s.Processing.ChunksStored)
	assert.Equal(t, uint64(50), s.Search.Total)
}
