package xnotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

// Listener 接收过期事件。
type Listener interface {
	OnExpired(ctx context.Context, ev xentry.Event) error
}

// ListenerFunc 让普通函数满足 Listener。
type ListenerFunc func(ctx context.Context, ev xentry.Event) error

// OnExpired 调用 f。
func (f ListenerFunc) OnExpired(ctx context.Context, ev xentry.Event) error {
	return f(ctx, ev)
}

// SubscriptionID 标识一次订阅。
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	l  Listener
}

// Option 定义 Bus 可选配置。
type Option func(*Bus)

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bus 是过期事件通知总线。
//
// 订阅列表采用写时复制，NotifyExpired 不持有锁。
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   atomic.Pointer[[]subscription]
	nextID SubscriptionID

	delivered atomic.Uint64
}

// New 创建通知总线。
func New(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default()}
	empty := []subscription{}
	b.subs.Store(&empty)
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe 订阅过期事件，返回订阅 ID。
func (b *Bus) Subscribe(l Listener) (SubscriptionID, error) {
	if l == nil {
		return 0, ErrNilListener
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	cur := *b.subs.Load()
	next := make([]subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, subscription{id: b.nextID, l: l})
	b.subs.Store(&next)
	return b.nextID, nil
}

// Unsubscribe 取消订阅，返回订阅是否存在。
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.subs.Load()
	for i, s := range cur {
		if s.id == id {
			next := make([]subscription, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			b.subs.Store(&next)
			return true
		}
	}
	return false
}

// Len 返回订阅数。
func (b *Bus) Len() int {
	return len(*b.subs.Load())
}

// Delivered 返回已投递的事件数。
func (b *Bus) Delivered() uint64 {
	return b.delivered.Load()
}

// NotifyExpired 把 ev 依次交给所有监听器。
func (b *Bus) NotifyExpired(ctx context.Context, ev xentry.Event) error {
	b.delivered.Add(1)
	var errs []error
	for _, s := range *b.subs.Load() {
		if err := b.deliver(ctx, s, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev xentry.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: subscription %d: %v", ErrListenerPanic, s.id, r)
			b.logger.LogAttrs(ctx, slog.LevelError, "xnotify: listener panicked",
				slog.String("key", ev.Key), slog.Any("panic", r))
		}
	}()
	if err := s.l.OnExpired(ctx, ev); err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "xnotify: listener failed",
			slog.String("key", ev.Key), slog.Uint64("subscription", uint64(s.id)), slog.Any("error", err))
		return err
	}
	return nil
}
