package xkeylock

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Handle 表示一次成功的锁获取。
type Handle interface {
	// Unlock 释放锁。幂等：第一次调用返回 nil，后续调用返回 [ErrLockNotHeld]。
	Unlock() error
}

// Striped 是固定槽数的 key 锁表。所有方法并发安全。
// 零值不可用，必须通过 [New] 创建。
type Striped struct {
	// 每个槽是容量为 1 的 channel：发送成功即持有锁，接收即释放。
	slots []chan struct{}
	mask  uint64
}

// New 创建锁表。
func New(opts ...Option) (*Striped, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	slots := make([]chan struct{}, o.stripes)
	for i := range slots {
		slots[i] = make(chan struct{}, 1)
	}
	return &Striped{
		slots: slots,
		mask:  uint64(o.stripes - 1),
	}, nil
}

// Stripe 返回 key 所在的槽序号。
func (s *Striped) Stripe(key string) int {
	return int(xxhash.Sum64String(key) & s.mask)
}

// Stripes 返回槽数量。
func (s *Striped) Stripes() int {
	return len(s.slots)
}

// Acquire 阻塞获取 key 所在槽的锁，ctx 取消或超时时返回 ctx.Err()。
func (s *Striped) Acquire(ctx context.Context, key string) (Handle, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return s.acquireSlot(ctx, s.Stripe(key))
}

// TryAcquire 非阻塞获取锁，槽被占用时返回 (nil, [ErrLockOccupied])。
func (s *Striped) TryAcquire(key string) (Handle, error) {
	idx := s.Stripe(key)
	select {
	case s.slots[idx] <- struct{}{}:
		return &slotHandle{slots: []chan struct{}{s.slots[idx]}}, nil
	default:
		return nil, ErrLockOccupied
	}
}

// AcquireAll 获取多个 key 的锁。
// 槽去重后按序号升序获取，不同调用方之间不会形成环路等待。
// 任一槽获取失败时释放已获取的槽并返回错误。
func (s *Striped) AcquireAll(ctx context.Context, keys []string) (Handle, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, s.Stripe(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	held := make([]chan struct{}, 0, len(idx))
	for _, i := range idx {
		select {
		case s.slots[i] <- struct{}{}:
			held = append(held, s.slots[i])
		case <-ctx.Done():
			release(held)
			return nil, ctx.Err()
		}
	}
	return &slotHandle{slots: held}, nil
}

// Do 在 key 的临界区内执行 fn。
func (s *Striped) Do(ctx context.Context, key string, fn func() error) error {
	h, err := s.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer h.Unlock() //nolint:errcheck // 首次 Unlock 不会失败
	return fn()
}

func (s *Striped) acquireSlot(ctx context.Context, idx int) (Handle, error) {
	// 快速路径：未竞争时不进入 select。
	select {
	case s.slots[idx] <- struct{}{}:
		return &slotHandle{slots: []chan struct{}{s.slots[idx]}}, nil
	default:
	}
	select {
	case s.slots[idx] <- struct{}{}:
		return &slotHandle{slots: []chan struct{}{s.slots[idx]}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type slotHandle struct {
	slots []chan struct{}
	done  atomic.Bool
}

func (h *slotHandle) Unlock() error {
	if !h.done.CompareAndSwap(false, true) {
		return ErrLockNotHeld
	}
	release(h.slots)
	return nil
}

// release 逆序释放，与获取顺序对称。
func release(held []chan struct{}) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i]
	}
}

var _ Handle = (*slotHandle)(nil)
