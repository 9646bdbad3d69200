// Package resilience 为向量模型调用提供熔断与退避重试。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// ErrCircuitOpen 熔断器处于打开状态，调用被直接拒绝。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State 熔断器状态。
type State int

const (
	// StateClosed 正常放行。
	StateClosed State = iota
	// StateOpen 拒绝所有调用，直到冷却结束。
	StateOpen
	// StateHalfOpen 冷却结束后放行少量探测调用。
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// Name 用于日志区分。
	Name string
	// FailureThreshold 连续失败多少次后打开。
	FailureThreshold int
	// Cooldown 打开后多久进入半开。
	Cooldown time.Duration
	// HalfOpenProbes 半开状态允许的探测调用数。
	HalfOpenProbes int
	// IsFailure 判断错误是否计入失败，nil 表示所有错误都计入。
	IsFailure func(error) bool
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig(name string) *BreakerConfig {
	return &BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
		IsFailure:        IsUpstreamFailure,
	}
}

// BreakerStats 熔断器状态快照。
type BreakerStats struct {
	State         string    `json:"state"`
	Failures      int       `json:"consecutive_failures"`
	Rejected      int64     `json:"rejected"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// CircuitBreaker 连续失败计数熔断器。
type CircuitBreaker struct {
	config *BreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	probes        int
	probeOK       int
	rejected      int64
	lastFailureAt time.Time
}

// NewCircuitBreaker 创建熔断器，config 为 nil 时使用默认配置。
func NewCircuitBreaker(config *BreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultBreakerConfig("default")
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = 1
	}
	return &CircuitBreaker{config: config, now: time.Now}
}

// Execute 通过熔断器执行 fn。
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureAt) < cb.config.Cooldown {
			cb.rejected++
			return ErrCircuitOpen
		}
		logger.Infow("Circuit breaker half-open", "name", cb.config.Name)
		cb.state = StateHalfOpen
		cb.probes, cb.probeOK = 1, 0
		return nil
	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenProbes {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.probes++
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err))
	if !failed {
		switch cb.state {
		case StateHalfOpen:
			cb.probeOK++
			if cb.probeOK >= cb.probes {
				logger.Infow("Circuit breaker closed", "name", cb.config.Name)
				cb.state = StateClosed
				cb.failures = 0
			}
		case StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	cb.lastFailureAt = cb.now()
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			logger.Warnw("Circuit breaker opened",
				"name", cb.config.Name,
				"failures", cb.failures,
				"error", err.Error(),
			)
			cb.state = StateOpen
		}
	case StateHalfOpen:
		logger.Warnw("Circuit breaker re-opened after probe failure",
			"name", cb.config.Name,
			"error", err.Error(),
		)
		cb.state = StateOpen
	}
}

// State 返回当前状态。
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats 返回状态快照。
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:         cb.state.String(),
		Failures:      cb.failures,
		Rejected:      cb.rejected,
		LastFailureAt: cb.lastFailureAt,
	}
}

// Reset 强制回到关闭状态。
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeOK = 0, 0, 0
}

// RetryConfig 退避重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（包含首次调用）。
	MaxAttempts int
	// InitialDelay 首次重试前的等待。
	InitialDelay time.Duration
	// MaxDelay 单次等待上限。
	MaxDelay time.Duration
	// Multiplier 指数退避因子。
	Multiplier float64
	// Retryable 判断错误是否值得重试，nil 时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Retryable:    IsRetryableError,
	}
}

// Retry 按指数退避重试 fn，直到成功、错误不可重试、次数耗尽或 ctx 结束。
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}
	attempts := max(config.MaxAttempts, 1)

	delay := config.InitialDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		logger.Debugw("Retrying embedding call",
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return fmt.Errorf("max retry attempts (%d) reached: %w", attempts, err)
}
