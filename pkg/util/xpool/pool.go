package xpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
)

const (
	maxWorkers   = 1 << 16
	maxQueueSize = 1 << 24
)

// Pool 是泛型 worker pool。New 创建后 worker 立即启动。
type Pool[T any] struct {
	handler func(T)
	queue   chan T
	opts    options

	mu     sync.RWMutex // 保护 closed 与 queue 的关闭
	closed bool

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New 创建并启动 pool。
// workers 范围 [1, 65536]，queueSize 范围 [1, 16777216]。
func New[T any](workers, queueSize int, handler func(T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 || workers > maxWorkers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 || queueSize > maxQueueSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	p := &Pool[T]{
		handler: handler,
		queue:   make(chan T, queueSize),
		opts:    o,
		done:    make(chan struct{}),
	}
	for range workers {
		p.wg.Go(p.worker)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *Pool[T]) worker() {
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.logger.Error("xpool: task panic recovered",
				slog.String("pool", p.opts.name),
				slog.String("task_type", fmt.Sprintf("%T", task)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	p.handler(task)
}

// Submit 非阻塞提交任务。
// 队列满返回 [ErrQueueFull]；pool 已关闭返回 [ErrPoolStopped]。
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close 拒绝新任务并等待所有已入队任务完成。幂等。
func (p *Pool[T]) Close() error {
	return p.Shutdown(context.Background())
}

// Shutdown 拒绝新任务并等待已入队任务完成，ctx 到期时返回 ctx.Err()。
// 超时返回后剩余 worker 仍会继续处理队列，可通过 [Pool.Done] 等待。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 返回所有 worker 退出后关闭的 channel。
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}

var _ io.Closer = (*Pool[int])(nil)
