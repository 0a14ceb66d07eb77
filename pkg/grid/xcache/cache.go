package xcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xexpire"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/grid/xtx"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
	"github.com/omeyang/xgrid/pkg/util/xid"
	"github.com/omeyang/xgrid/pkg/util/xkeylock"
)

const component = "xcache"

// Dependencies 是缓存的协作者。
type Dependencies struct {
	Container   *xentry.Container
	Persistence *xpersist.Manager
	Expiration  *xexpire.Manager
	// TxManager 可选。提供时缓存把自身的命令链绑定为事务提交处理器。
	TxManager *xtx.Manager
}

// Option 定义缓存可选配置。
type Option func(*core)

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(c *core) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock 设置时钟，nil 时忽略。应与过期管理器使用同一个时钟。
func WithClock(clk clockwork.Clock) Option {
	return func(c *core) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithObserver 设置观测器，nil 时忽略。
func WithObserver(o xmetrics.Observer) Option {
	return func(c *core) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithVersionGenerator 设置条目版本号生成器，nil 时忽略。
func WithVersionGenerator(g *xid.Generator) Option {
	return func(c *core) {
		if g != nil {
			c.versions = g
		}
	}
}

// EntryOption 定义写入条目的过期参数。
type EntryOption func(*entryOptions)

type entryOptions struct {
	lifespan time.Duration
	maxIdle  time.Duration
}

// WithLifespan 设置条目的存活时间，为负表示不过期。
func WithLifespan(d time.Duration) EntryOption {
	return func(o *entryOptions) { o.lifespan = d }
}

// WithMaxIdle 设置条目的最大闲置时间，为负表示不限制。
func WithMaxIdle(d time.Duration) EntryOption {
	return func(o *entryOptions) { o.maxIdle = d }
}

func resolveEntryOptions(opts []EntryOption) entryOptions {
	o := entryOptions{lifespan: xentry.Immortal, maxIdle: xentry.NoMaxIdle}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// core 是所有缓存视图共享的状态。
type core struct {
	cfg         Config
	container   *xentry.Container
	persistence *xpersist.Manager
	expiration  *xexpire.Manager
	locks       *xkeylock.Striped
	versions    *xid.Generator
	negative    *ristretto.Cache[string, struct{}]
	loads       singleflight.Group
	logger      *slog.Logger
	clock       clockwork.Clock
	observer    xmetrics.Observer
	handler     xcommand.Handler

	// staged 保存已 prepare、尚未 commit 的事务。
	staged sync.Map // txID -> *stagedTx

	closeOnce sync.Once
	closed    atomic.Bool
}

// Cache 是缓存的一个视图。视图之间共享数据，只有命令标志不同。
// Cache 的所有方法都是并发安全的。
type Cache struct {
	*core
	flags xcommand.Flag
}

// New 创建缓存，并把它绑定为过期管理器的集群移除写路径。
func New(cfg Config, deps Dependencies, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	switch {
	case deps.Container == nil:
		return nil, ErrNilContainer
	case deps.Persistence == nil:
		return nil, ErrNilPersistence
	case deps.Expiration == nil:
		return nil, ErrNilExpiration
	}

	locks, err := xkeylock.New(xkeylock.WithStripes(cfg.LockStripes))
	if err != nil {
		return nil, fmt.Errorf("xcache: %w", err)
	}
	co := &core{
		cfg:         cfg,
		container:   deps.Container,
		persistence: deps.Persistence,
		expiration:  deps.Expiration,
		locks:       locks,
		logger:      slog.Default(),
		clock:       clockwork.NewRealClock(),
		observer:    xmetrics.NoopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(co)
		}
	}
	if co.versions == nil {
		if co.versions, err = xid.NewGenerator(); err != nil {
			return nil, fmt.Errorf("xcache: version generator: %w", err)
		}
	}
	if cfg.negativeEnabled() {
		co.negative, err = ristretto.NewCache(&ristretto.Config[string, struct{}]{
			NumCounters: cfg.NegativeCapacity * 10,
			MaxCost:     cfg.NegativeCapacity,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("xcache: negative cache: %w", err)
		}
	}

	co.handler = xcommand.Chain(xcommand.Apply(&visitor{c: co}),
		observeInterceptor{c: co},
		deps.Expiration.Interceptor(),
	)
	c := &Cache{core: co}
	deps.Expiration.BindCache(c)
	if deps.TxManager != nil {
		deps.TxManager.Bind(co.handler)
	}
	return c, nil
}

// WithFlags 返回附带 flags 的缓存视图，标志与当前视图的标志合并。
func (c *Cache) WithFlags(flags ...xcommand.Flag) xexpire.Cache {
	return c.View(flags...)
}

// View 与 [Cache.WithFlags] 相同，但返回具体类型。
func (c *Cache) View(flags ...xcommand.Flag) *Cache {
	return &Cache{core: c.core, flags: c.flags | xcommand.Combine(flags...)}
}

// Flags 返回视图的命令标志。
func (c *Cache) Flags() xcommand.Flag { return c.flags }

// Handler 返回缓存的命令链。
func (c *Cache) Handler() xcommand.Handler { return c.handler }

// invoke 执行命令；ctx 中有活动事务时只登记到事务。
func (c *Cache) invoke(ctx context.Context, cmd xcommand.Command) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if tx := xtx.FromContext(ctx); tx != nil && tx.Status() == xtx.StatusActive {
		return nil, tx.Enlist(cmd)
	}
	return c.handler(ctx, cmd)
}

// checkExpiredBeforeWrite 让过期管理器先处理旧条目，必须在获取 key 锁之前调用。
func (c *Cache) checkExpiredBeforeWrite(ctx context.Context, key string) {
	seg := c.container.Segment(key)
	if e := c.container.Peek(seg, key); e != nil {
		c.expiration.HandlePossibleExpiration(ctx, e, seg, true)
	}
}

// Put 写入 key，返回未过期的旧值。事务内调用时返回 nil。
func (c *Cache) Put(ctx context.Context, key string, value []byte, opts ...EntryOption) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	o := resolveEntryOptions(opts)
	c.checkExpiredBeforeWrite(ctx, key)
	res, err := c.invoke(ctx, &xcommand.PutCommand{
		Base: xcommand.Base{Flag: c.flags}, Key: key, Value: value,
		Lifespan: o.lifespan, MaxIdle: o.maxIdle,
	})
	return asBytes(res), err
}

// PutAll 以相同的过期参数批量写入。
func (c *Cache) PutAll(ctx context.Context, entries map[string][]byte, opts ...EntryOption) error {
	if len(entries) == 0 {
		return nil
	}
	if _, ok := entries[""]; ok {
		return ErrEmptyKey
	}
	o := resolveEntryOptions(opts)
	cmd := &xcommand.PutMapCommand{
		Base: xcommand.Base{Flag: c.flags}, Entries: entries,
		Lifespan: o.lifespan, MaxIdle: o.maxIdle,
	}
	for _, k := range cmd.Keys() {
		c.checkExpiredBeforeWrite(ctx, k)
	}
	_, err := c.invoke(ctx, cmd)
	return err
}

// Replace 在 key 存在且未过期时替换；expected 非 nil 时还要求当前 value 与之相等。
// 返回是否替换。事务内调用时返回 false。
func (c *Cache) Replace(ctx context.Context, key string, expected, value []byte, opts ...EntryOption) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	o := resolveEntryOptions(opts)
	c.checkExpiredBeforeWrite(ctx, key)
	res, err := c.invoke(ctx, &xcommand.ReplaceCommand{
		Base: xcommand.Base{Flag: c.flags}, Key: key, Expected: expected, Value: value,
		Lifespan: o.lifespan, MaxIdle: o.maxIdle,
	})
	ok, _ := res.(bool)
	return ok, err
}

// Remove 删除 key，返回未过期的旧值。
func (c *Cache) Remove(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	c.checkExpiredBeforeWrite(ctx, key)
	res, err := c.invoke(ctx, &xcommand.RemoveCommand{Base: xcommand.Base{Flag: c.flags}, Key: key})
	return asBytes(res), err
}

// RemoveExpired 在 key 已 lifespan 过期、且当前 value 与 lifespan 与期望一致时删除它，
// 并发出过期事件。value 为 nil 时不比较 value 与 lifespan；内存中没有该 key 时
// 删除持久化存储中的行，真正删除了行（或视图带 FlagPurgedFromStore）才发出事件；
// 该 key 的过期事件已经发出过时不再重复。
// 事务内调用时返回 false，实际结果在提交时产生。
func (c *Cache) RemoveExpired(ctx context.Context, key string, value []byte, lifespan time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	res, err := c.invoke(ctx, &xcommand.RemoveExpiredCommand{
		Base: xcommand.Base{Flag: c.flags}, Key: key, Value: value, Lifespan: lifespan,
	})
	ok, _ := res.(bool)
	return ok, err
}

// Clear 清空内存与持久化存储。Clear 不登记写抑制。
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.invoke(ctx, &xcommand.ClearCommand{Base: xcommand.Base{Flag: c.flags}})
	return err
}

// Len 返回内存中的条目数（包括尚未移除的过期条目）。
func (c *Cache) Len() int {
	return c.container.Len()
}

// Close 释放负缓存。进行中的读穿透加载会自然结束。
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.negative != nil {
			c.negative.Close()
		}
	})
	return nil
}

func asBytes(v any) []byte {
	b, _ := v.([]byte)
	return b
}

var _ xexpire.Cache = (*Cache)(nil)
