// Package xpool 提供通用的泛型 worker pool。
//
// Pool 用于把可能阻塞的任务（如持久化 I/O）从调用方 goroutine 上移走：
//   - 固定数量的 worker，有界队列
//   - Submit 非阻塞，队列满时返回 [ErrQueueFull]，由调用方决定降级策略
//   - Close 等待队列中剩余任务处理完成；Shutdown(ctx) 支持超时
//   - 单个任务 panic 被恢复并记录日志，不影响其他任务
//
// Close/Shutdown 不可在 handler 内调用，否则会死锁。
package xpool
