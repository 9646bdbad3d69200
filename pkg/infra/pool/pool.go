// Package pool 基于 ants 提供有界 goroutine 池。docvector 用它限制
// 同时发往向量模型供应商的请求数，池满时提交方阻塞形成背压。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("池已关闭")
	// ErrPoolOverload 非阻塞模式下池已满
	ErrPoolOverload = errors.New("池已满")
	// ErrInvalidPoolConfig 无效的池配置
	ErrInvalidPoolConfig = errors.New("无效的池配置")
)

// Config 池配置。
type Config struct {
	// Capacity 最大并发 goroutine 数
	Capacity int
	// ExpiryDuration 空闲 worker 回收时间，0 使用 ants 默认值
	ExpiryDuration time.Duration
	// Nonblocking 为 true 时池满立即返回 ErrPoolOverload
	Nonblocking bool
	// PanicHandler 为 nil 时只记录日志
	PanicHandler func(interface{})
}

// EmbeddingPoolConfig 返回向量请求池的配置，容量即 vector.embed-concurrency。
func EmbeddingPoolConfig(concurrency int) *Config {
	return &Config{
		Capacity:       concurrency,
		ExpiryDuration: 30 * time.Second,
	}
}

// Stats 是池的统计快照，随 /v1/stats 返回。
type Stats struct {
	SubmittedTasks  int64 `json:"submitted_tasks"`
	CompletedTasks  int64 `json:"completed_tasks"`
	CanceledTasks   int64 `json:"canceled_tasks"`
	RejectedTasks   int64 `json:"rejected_tasks"`
	PanicRecovered  int64 `json:"panic_recovered"`
	TotalWaitTimeNs int64 `json:"total_wait_time_ns"`
	Running         int   `json:"running"`
	Capacity        int   `json:"capacity"`
}

// Pool 包装 ants.Pool 并统计任务。
type Pool struct {
	name string
	pool *ants.Pool

	submitted, completed, canceled, rejected, panics, waitNs atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewPool 创建池，config 为 nil 或容量不为正时返回 ErrInvalidPoolConfig。
func NewPool(name string, config *Config) (*Pool, error) {
	if config == nil || config.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidPoolConfig)
	}

	p := &Pool{name: name}
	handler := config.PanicHandler
	ap, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(r interface{}) {
			p.panics.Add(1)
			if handler != nil {
				handler(r)
				return
			}
			logger.Errorw("Worker panic recovered", "pool", name, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = ap

	logger.Infow("Worker pool created", "name", name, "capacity", config.Capacity, "nonblocking", config.Nonblocking)
	return p, nil
}

// Name 返回池名称
func (p *Pool) Name() string { return p.name }

// Cap 返回池容量
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running 返回正在运行的 worker 数
func (p *Pool) Running() int { return p.pool.Running() }

// Submit 提交任务。阻塞模式下池满时等待空闲 worker。
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	queued := time.Now()
	err := p.pool.Submit(func() {
		p.waitNs.Add(int64(time.Since(queued)))
		task()
		p.completed.Add(1)
	})
	switch {
	case err == nil:
		p.submitted.Add(1)
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// SubmitWithContext 提交任务；轮到执行时 ctx 已取消则调用 onCancel（可为 nil）并跳过 task。
func (p *Pool) SubmitWithContext(ctx context.Context, task func(), onCancel func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(func() {
		if err := ctx.Err(); err != nil {
			p.canceled.Add(1)
			if onCancel != nil {
				onCancel(err)
			}
			return
		}
		task()
	})
}

// Release 关闭池，重复调用无副作用。
func (p *Pool) Release() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.pool.Release()
		logger.Infow("Worker pool released", "name", p.name)
	})
}

// Stats 返回统计快照。
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks:  p.submitted.Load(),
		CompletedTasks:  p.completed.Load(),
		CanceledTasks:   p.canceled.Load(),
		RejectedTasks:   p.rejected.Load(),
		PanicRecovered:  p.panics.Load(),
		TotalWaitTimeNs: p.waitNs.Load(),
		Running:         p.pool.Running(),
		Capacity:        p.pool.Cap(),
	}
}
