// Package server 管理进程内的网络服务：统一启动，收到退出信号后按启动的逆序优雅关闭。
package server

import "context"

// Runnable 是可由 Manager 托管的服务，docvector 目前只有 HTTP 一种。
type Runnable interface {
	// Name 用于日志与错误信息。
	Name() string
	// Start 在开始监听后返回，监听失败时返回错误。
	Start(ctx context.Context) error
	// Stop 在 ctx 截止前完成优雅关闭。
	Stop(ctx context.Context) error
}
