package xcache

import (
	"context"
	"log/slog"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
)

// Get 读取 key。条目已过期时交给过期管理器处理，并按未命中返回。
// 命中设置了闲置时间的条目会刷新其最近使用时间。
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if c.closed.Load() {
		return nil, false, ErrClosed
	}
	seg := c.container.Segment(key)
	if e := c.container.Peek(seg, key); e != nil {
		if c.expiration.HandlePossibleExpiration(ctx, e, seg, false) {
			return nil, false, nil
		}
		if e.Metadata.IsTransient() {
			if err := c.touch(ctx, key); err != nil {
				return nil, false, err
			}
		}
		return e.Value, true, nil
	}
	return c.readThrough(ctx, key)
}

// touch 在临界区内刷新条目的最近使用时间；条目已被替换或已过期时不做任何事。
func (c *Cache) touch(ctx context.Context, key string) error {
	_, err := c.container.Compute(ctx, key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		now := c.clock.Now()
		if cur == nil || cur.IsExpired(now) {
			return cur, nil
		}
		return cur.Touch(now), nil
	})
	return err
}

func (c *Cache) readThrough(ctx context.Context, key string) ([]byte, bool, error) {
	if len(c.persistence.Stores()) == 0 {
		return nil, false, nil
	}
	if c.negative != nil {
		if _, ok := c.negative.Get(key); ok {
			return nil, false, nil
		}
	}

	// 加载使用独立的 ctx 与超时，首个调用者取消不影响其他等待者
	detached := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(detached, c.cfg.LoadTimeout)
		defer cancel()
		return c.load(lctx, key)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		e, _ := res.Val.(*xentry.Entry)
		if e == nil {
			return nil, false, nil
		}
		return e.Value, true, nil
	}
}

// load 从持久化层加载一行并安装到内存。已过期的行交给过期管理器，返回 nil。
func (c *Cache) load(ctx context.Context, key string) (_ *xentry.Entry, err error) {
	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "load",
		Kind:      xmetrics.KindClient,
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	row, err := c.persistence.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		c.rememberMissing(key)
		return nil, nil
	}
	if row.Metadata.IsExpired(c.clock.Now()) {
		c.expiration.HandleStoreExpirationEntry(ctx, key, row.Value, row.Metadata)
		return nil, nil
	}
	return c.install(ctx, row)
}

// install 只在内存中仍没有该 key 时安装加载到的行，否则以内存为准。
func (c *Cache) install(ctx context.Context, row *xpersist.Row) (*xentry.Entry, error) {
	version, err := c.versions.Next()
	if err != nil {
		return nil, err
	}
	loaded := xentry.NewEntry(row.Key, row.Value, row.Metadata)
	loaded.Version = version
	got, err := c.container.Compute(ctx, row.Key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		if cur != nil {
			return cur, nil
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	if got != loaded && got.IsExpired(c.clock.Now()) {
		return nil, nil
	}
	return got, nil
}

func (c *core) rememberMissing(key string) {
	if c.negative == nil {
		return
	}
	if !c.negative.SetWithTTL(key, struct{}{}, 1, c.cfg.NegativeTTL) {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "xcache: negative entry dropped",
			slog.String("key", key))
	}
}

func (c *core) forgetMissing(key string) {
	if c.negative != nil {
		c.negative.Del(key)
	}
}

// WaitNegative 等待负缓存的异步写入完成。ristretto 的写入是异步的，测试中需要显式等待。
func (c *Cache) WaitNegative() {
	if c.negative != nil {
		c.negative.Wait()
	}
}
