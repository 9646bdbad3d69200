package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docvector/internal/docvector/biz"
	"github.com/kart-io/docvector/internal/docvector/metrics"
	"github.com/kart-io/docvector/pkg/component/storage"
	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/llm/resilience"
	"github.com/kart-io/docvector/pkg/utils/response"
)

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status  string                   `json:"status"`
	Storage []storage.HealthStatus   `json:"storage"`
	Breaker *resilience.BreakerStats `json:"breaker,omitempty"`
}

// HealthHandler reports backing store and upstream health.
type HealthHandler struct {
	storage *storage.Manager
	breaker biz.BreakerReporter
	metrics http.Handler
}

// NewHealthHandler creates a new HealthHandler. breaker may be nil.
func NewHealthHandler(mgr *storage.Manager, breaker biz.BreakerReporter, m *metrics.VectorMetrics) *HealthHandler {
	if m == nil {
		m = metrics.GetVectorMetrics()
	}
	return &HealthHandler{storage: mgr, breaker: breaker, metrics: m.Handler("docvector", "")}
}

// Health pings every registered store.
// 熔断器打开时服务仍可处理元数据请求，只标记为 degraded。
func (h *HealthHandler) Health(c *gin.Context) {
	report := HealthReport{Status: "ok"}
	healthy := true

	if h.storage != nil {
		report.Storage = h.storage.HealthCheckAll(c.Request.Context())
		for _, s := range report.Storage {
			if !s.Healthy {
				healthy = false
			}
		}
	}
	if h.breaker != nil {
		stats := h.breaker.Stats()
		report.Breaker = &stats
		if stats.State == resilience.StateOpen.String() {
			report.Status = "degraded"
		}
	}

	if !healthy {
		report.Status = "unhealthy"
		response.FailWithData(c, errors.ErrServiceUnavailable, report)
		return
	}
	response.OK(c, report)
}

// Metrics serves the Prometheus scrape endpoint.
func (h *HealthHandler) Metrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
