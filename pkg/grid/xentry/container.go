package xentry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omeyang/xgrid/pkg/util/xkeylock"
)

const (
	defaultSegments   = 16
	defaultMaxEntries = 1 << 20
	maxSegments       = 1 << 12
)

var (
	// ErrInvalidSegments 表示分段数无效。
	ErrInvalidSegments = errors.New("xentry: invalid segment count")

	// ErrInvalidMaxEntries 表示容量无效。
	ErrInvalidMaxEntries = errors.New("xentry: invalid max entries")

	// ErrKeyMismatch 表示 Compute 回调返回的条目 key 与目标 key 不一致。
	ErrKeyMismatch = errors.New("xentry: computed entry key mismatch")
)

// ComputeFunc 在 key 的临界区内被调用。
// cur 为当前条目（不存在时为 nil）。返回 nil 表示删除；
// 返回 cur 本身表示不变；返回新条目表示替换。返回错误时容器不变。
type ComputeFunc func(cur *Entry) (*Entry, error)

// ContainerConfig 定义数据容器配置。
type ContainerConfig struct {
	// Segments 分段数，默认 16。
	Segments int `koanf:"segments"`
	// MaxEntries 总容量上限（平均分配到各分段），默认 1<<20。
	MaxEntries int `koanf:"max_entries"`
}

func (c *ContainerConfig) applyDefaults() {
	if c.Segments == 0 {
		c.Segments = defaultSegments
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = defaultMaxEntries
	}
}

// Validate 校验配置。
func (c ContainerConfig) Validate() error {
	if c.Segments <= 0 || c.Segments > maxSegments {
		return fmt.Errorf("%w: %d", ErrInvalidSegments, c.Segments)
	}
	if c.MaxEntries < c.Segments {
		return fmt.Errorf("%w: %d (must be >= segments)", ErrInvalidMaxEntries, c.MaxEntries)
	}
	return nil
}

// ContainerOption 定义容器可选配置。
type ContainerOption func(*containerOptions)

type containerOptions struct {
	onEvict func(*Entry)
	stripes int
}

// WithEvictionListener 设置容量淘汰回调。
// 仅容量淘汰触发，Remove/Compute 删除与 Clear 不触发。
// 回调在分段 LRU 的内部锁中执行，不得访问容器自身。
func WithEvictionListener(fn func(*Entry)) ContainerOption {
	return func(o *containerOptions) {
		o.onEvict = fn
	}
}

// WithLockStripes 设置临界区锁槽数量，必须为 2 的幂。
func WithLockStripes(n int) ContainerOption {
	return func(o *containerOptions) {
		o.stripes = n
	}
}

// Container 是分段、有界的内存数据容器。
type Container struct {
	segments []*lru.Cache[string, *Entry]
	locks    *xkeylock.Striped
	onEvict  func(*Entry)

	// golang-lru 的 Remove/Purge 也会回调 onEvict，这里标记显式删除以便过滤。
	removing sync.Map // key -> struct{}
	clearing atomic.Bool
}

// NewContainer 创建数据容器。
func NewContainer(cfg ContainerConfig, opts ...ContainerOption) (*Container, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := containerOptions{stripes: 256}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	locks, err := xkeylock.New(xkeylock.WithStripes(o.stripes))
	if err != nil {
		return nil, err
	}

	c := &Container{locks: locks, onEvict: o.onEvict}
	perSegment := cfg.MaxEntries / cfg.Segments
	c.segments = make([]*lru.Cache[string, *Entry], cfg.Segments)
	for i := range c.segments {
		seg, err := lru.NewWithEvict(perSegment, c.evicted)
		if err != nil {
			return nil, fmt.Errorf("xentry: create segment %d: %w", i, err)
		}
		c.segments[i] = seg
	}
	return c, nil
}

func (c *Container) evicted(key string, e *Entry) {
	if c.onEvict == nil || c.clearing.Load() {
		return
	}
	if _, ok := c.removing.Load(key); ok {
		return
	}
	c.onEvict(e)
}

// Segment 返回 key 所属分段。
func (c *Container) Segment(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(c.segments)))
}

// Segments 返回分段数。
func (c *Container) Segments() int {
	return len(c.segments)
}

// Peek 读取条目，不更新 LRU 顺序，不做过期判定。
// segment 越界时返回 nil。
func (c *Container) Peek(segment int, key string) *Entry {
	if segment < 0 || segment >= len(c.segments) {
		return nil
	}
	e, _ := c.segments[segment].Peek(key)
	return e
}

// Get 读取条目并更新 LRU 顺序，不做过期判定。
func (c *Container) Get(key string) *Entry {
	e, _ := c.segments[c.Segment(key)].Get(key)
	return e
}

// Compute 在 key 的临界区内原子地执行读-改-写，返回计算后的条目。
func (c *Container) Compute(ctx context.Context, key string, fn ComputeFunc) (*Entry, error) {
	h, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer h.Unlock() //nolint:errcheck // 首次 Unlock 不会失败

	seg := c.segments[c.Segment(key)]
	cur, _ := seg.Peek(key)
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	switch {
	case next == nil:
		if cur != nil {
			c.removing.Store(key, struct{}{})
			seg.Remove(key)
			c.removing.Delete(key)
		}
	case next != cur:
		if next.Key != key {
			return cur, fmt.Errorf("%w: want %q, got %q", ErrKeyMismatch, key, next.Key)
		}
		seg.Add(key, next)
	}
	return next, nil
}

// Put 安装条目并返回旧条目。
func (c *Container) Put(ctx context.Context, e *Entry) (*Entry, error) {
	var prev *Entry
	_, err := c.Compute(ctx, e.Key, func(cur *Entry) (*Entry, error) {
		prev = cur
		return e, nil
	})
	return prev, err
}

// Remove 删除条目并返回旧条目。
func (c *Container) Remove(ctx context.Context, key string) (*Entry, error) {
	var prev *Entry
	_, err := c.Compute(ctx, key, func(cur *Entry) (*Entry, error) {
		prev = cur
		return nil, nil
	})
	return prev, err
}

// IterateIncludingExpired 遍历所有条目（包括已过期的）。
// 每个分段先取 key 快照再逐个 Peek，遍历期间被删除的 key 会被跳过。
// ctx 取消时产出 (nil, ctx.Err()) 并结束。
func (c *Container) IterateIncludingExpired(ctx context.Context) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for _, seg := range c.segments {
			for _, key := range seg.Keys() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				e, ok := seg.Peek(key)
				if !ok {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// Len 返回条目总数（包括已过期的）。
func (c *Container) Len() int {
	n := 0
	for _, seg := range c.segments {
		n += seg.Len()
	}
	return n
}

// Clear 清空所有分段。
func (c *Container) Clear() {
	c.clearing.Store(true)
	defer c.clearing.Store(false)
	for _, seg := range c.segments {
		seg.Purge()
	}
}
