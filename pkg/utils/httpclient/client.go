// Package httpclient 是向量模型供应商共用的 HTTP 客户端：
// 5xx 与传输错误按指数退避重试，并向上游透传 W3C Trace Context。
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kart-io/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/docvector/pkg/utils/json"
)

// maxErrorBody 限制写入 StatusError 的响应体长度。
const maxErrorBody = 4 << 10

// StatusError 表示上游返回了 >= 400 的状态码，供熔断与重试策略按状态码分类。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

// Client 包装 http.Client，请求体会被缓存以便重放。
type Client struct {
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	userAgent  string
}

// NewClient 创建客户端，maxRetries 为 0 时不重试。
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: max(maxRetries, 0),
		backoff:    500 * time.Millisecond,
		userAgent:  "docvector/" + version.Get().GitVersion,
	}
}

// WithBackoff 设置首次重试的等待时间，之后每次翻倍。
func (c *Client) WithBackoff(d time.Duration) *Client {
	c.backoff = d
	return c
}

// WithUserAgent 覆盖默认的 User-Agent。
func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

// DoRequest 发送请求。传输错误与 5xx 会被重试；重试耗尽时
// 最后一个 5xx 响应原样返回，由调用方决定如何处理。
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	c.injectTraceContext(req)
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = b
	}

	wait := c.backoff
	for attempt := 0; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.httpClient.Do(req)
		last := attempt >= c.maxRetries
		switch {
		case err == nil && resp.StatusCode < http.StatusInternalServerError:
			return resp, nil
		case err == nil && last:
			return resp, nil
		case err != nil && last:
			return nil, err
		case err == nil:
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
		}

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		wait *= 2
	}
}

// DoJSON 发送请求并把响应解码到 v；状态码 >= 400 时返回 *StatusError。
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// injectTraceContext 将当前 Span 写入请求头，无活跃 Span 时传播器不写任何内容。
func (c *Client) injectTraceContext(req *http.Request) {
	if req == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}
