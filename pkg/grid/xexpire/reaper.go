package xexpire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
)

// ErrScanPanic 表示扫描数据容器时发生 panic。
var ErrScanPanic = errors.New("xexpire: scan panicked")

var _ xpersist.PurgeListener = (*Manager)(nil)

// ProcessExpiration 执行一次回收周期。
//
// 第一阶段扫描数据容器（包括已过期条目），按策略移除过期条目，
// 并等待本阶段派发的异步删除与通知完成；第二阶段让持久化层清理过期行，
// Manager 作为清理监听器。
//
// ctx 取消会在阶段之间与条目之间被检查，周期优雅结束并返回 nil。
// 扫描出错或 panic 时记录日志、跳过第二阶段并返回错误。
func (m *Manager) ProcessExpiration(ctx context.Context) (err error) {
	if ctx.Err() != nil {
		m.logInterrupted(ctx, "memory")
		return nil
	}
	start := m.clock.Now()
	ctx, span := xmetrics.Start(ctx, m.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "process_expiration",
		Attrs:     []xmetrics.Attr{xmetrics.String("policy", m.policy.Kind().String())},
	})
	var scanned int
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int("scanned", scanned)}})
	}()

	scanned, err = m.scanMemory(ctx)
	if err != nil {
		m.stats.failures.Add(1)
		m.logger.LogAttrs(ctx, slog.LevelError, "xexpire: memory scan failed",
			slog.Int("scanned", scanned), slog.Any("error", err))
		return err
	}
	if ctx.Err() != nil {
		m.logInterrupted(ctx, "store")
		return nil
	}

	if perr := m.persistence.PurgeExpired(ctx, m); perr != nil {
		m.stats.failures.Add(1)
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: store purge failed", slog.Any("error", perr))
	}
	m.stats.cycles.Add(1)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "xexpire: cycle completed",
		slog.Int("scanned", scanned),
		slog.Duration("elapsed", m.clock.Since(start)))
	return nil
}

func (m *Manager) logInterrupted(ctx context.Context, phase string) {
	m.logger.LogAttrs(ctx, slog.LevelInfo, "xexpire: cycle interrupted",
		slog.String("phase", phase), slog.Any("cause", context.Cause(ctx)))
}

// scanMemory 是回收周期的第一阶段。返回前等待本阶段派发的异步任务。
func (m *Manager) scanMemory(ctx context.Context) (scanned int, err error) {
	var pending sync.WaitGroup
	defer pending.Wait()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrScanPanic, r)
		}
	}()

	clustered := m.policy.Clustered()
	for e, iterErr := range m.container.IterateIncludingExpired(ctx) {
		if iterErr != nil {
			if ctx.Err() != nil {
				m.logInterrupted(ctx, "memory")
				return scanned, nil
			}
			return scanned, iterErr
		}
		if ctx.Err() != nil {
			m.logInterrupted(ctx, "memory")
			return scanned, nil
		}
		scanned++
		if m.suppressed.Contains(e.Key) {
			continue
		}
		now := m.clock.Now()
		if !e.IsExpired(now) {
			continue
		}
		if clustered && e.IsMortallyExpired(now) {
			m.expireClustered(ctx, e.Key, true, nil)
			continue
		}
		m.expireLocal(ctx, e.Key, -1, &pending)
	}
	return scanned, nil
}

// expireLocal 在 key 的临界区内复核并移除过期条目。
// 移除成功后删除存储中的副本并发出事件，pending 非 nil 时这一步在执行器上进行。
// 守卫在事件发出后释放。返回是否移除。
func (m *Manager) expireLocal(ctx context.Context, key string, segment int, pending *sync.WaitGroup) bool {
	if !m.guard.TryAdd(key) {
		m.stats.skipped.Add(1)
		return false
	}
	removed, err := m.removeIfExpired(ctx, key)
	if err != nil || removed == nil {
		m.guard.Remove(key)
		if err != nil {
			m.stats.failures.Add(1)
			m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: local removal failed",
				slog.String("key", key), slog.Any("error", err))
		} else {
			m.stats.skipped.Add(1)
		}
		return false
	}
	if segment < 0 {
		segment = m.container.Segment(key)
	}

	finish := func(ctx context.Context) {
		defer m.guard.Remove(key)
		m.afterLocalRemoval(ctx, removed, segment)
	}
	if pending == nil {
		finish(ctx)
		return true
	}
	pending.Add(1)
	actx := context.WithoutCancel(ctx)
	m.submit(func() {
		defer pending.Done()
		finish(actx)
	})
	return true
}

func (m *Manager) removeIfExpired(ctx context.Context, key string) (*xentry.Entry, error) {
	var removed *xentry.Entry
	_, err := m.container.Compute(ctx, key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		if cur == nil || m.suppressed.Contains(key) || !cur.IsExpired(m.clock.Now()) {
			return cur, nil
		}
		removed = cur
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// afterLocalRemoval 删除存储中的副本并发出事件。存储删除失败不阻止事件。
func (m *Manager) afterLocalRemoval(ctx context.Context, e *xentry.Entry, segment int) {
	if m.persistence.HasWriter() {
		res := <-m.persistence.DeleteFromAllStoresAsync(ctx, e.Key, segment, xpersist.ModeBoth)
		if res.Err != nil {
			m.stats.failures.Add(1)
			m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: store delete after expiration failed",
				slog.String("key", e.Key), slog.Int("segment", segment), slog.Any("error", res.Err))
		}
	}
	_ = m.NotifyExpired(ctx, xentry.EventFromEntry(e, xentry.SourceMemory))
}

// HandlePossibleExpiration 在读或写访问到 e 时调用，报告 e 是否已过期。
//
// 过期时按策略移除：集群模式下 lifespan 过期走集群移除，其余走本地移除；
// 是否等待移除完成由策略与 isWrite 决定。
// 有进行中写的 key 报告为过期但不移除。
func (m *Manager) HandlePossibleExpiration(ctx context.Context, e *xentry.Entry, segment int, isWrite bool) bool {
	if e == nil {
		return false
	}
	now := m.clock.Now()
	if !e.IsExpired(now) {
		return false
	}
	if m.suppressed.Contains(e.Key) {
		m.stats.skipped.Add(1)
		return true
	}
	wait := m.policy.WaitForRemoval(isWrite)
	if m.policy.Clustered() && e.IsMortallyExpired(now) {
		if err := m.triggerLifespanRemoval(ctx, e.Key, e.Value, e.Metadata.Lifespan, wait,
			m.policy.RemovalFlags(isWrite)); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelDebug, "xexpire: removal on access failed",
				slog.String("key", e.Key), slog.Bool("write", isWrite), slog.Any("error", err))
		}
		return true
	}
	if wait {
		m.expireLocal(ctx, e.Key, segment, nil)
		return true
	}
	m.HandleExpiredOnRead(ctx, e, now)
	return true
}

// HandleExpiredOnRead 处理读路径发现的过期条目。
// 存在可写存储时删除较慢，移除派发到执行器；否则在当前协程完成。
func (m *Manager) HandleExpiredOnRead(ctx context.Context, e *xentry.Entry, now time.Time) {
	if e == nil || !e.IsExpired(now) {
		return
	}
	segment := m.container.Segment(e.Key)
	if !m.persistence.HasWriter() {
		m.expireLocal(ctx, e.Key, segment, nil)
		return
	}
	actx := context.WithoutCancel(ctx)
	m.submit(func() { m.expireLocal(actx, e.Key, segment, nil) })
}

// HandleStoreExpiration 处理存储清理发现的、只知道 key 的过期行。
// 内存中仍有该 key 时，只有它也已过期才会移除。
// 内存中没有该 key 且它的过期事件已经发出时，报告被忽略。
func (m *Manager) HandleStoreExpiration(ctx context.Context, key string) {
	m.handleStoreExpiration(ctx, key, nil, nil)
}

// HandleStoreExpirationEntry 处理存储清理发现的完整过期行。
// 内存中仍有该 key 时，只有 value 与 lifespan 一致且已过期才会移除。
func (m *Manager) HandleStoreExpirationEntry(ctx context.Context, key string, value []byte, md xentry.Metadata) {
	m.handleStoreExpiration(ctx, key, value, &md)
}

func (m *Manager) handleStoreExpiration(ctx context.Context, key string, value []byte, md *xentry.Metadata) {
	if m.suppressed.Contains(key) {
		m.stats.skipped.Add(1)
		return
	}
	segment := m.container.Segment(key)
	if m.policy.Clustered() {
		if m.expireStoreClustered(ctx, key, segment, value, md) {
			return
		}
	}
	m.expireFromStore(ctx, key, segment, value, md)
}

// expireStoreClustered 把存储侧过期交给集群移除，返回是否已处理。
// 内存中没有副本时，命令带 FlagPurgedFromStore，由缓存写路径发出存储事件；
// 只有 max-idle 过期或未过期的副本留给本地处理。
func (m *Manager) expireStoreClustered(ctx context.Context, key string, segment int, value []byte, md *xentry.Metadata) bool {
	var (
		expected []byte
		lifespan time.Duration
		flags    []xcommand.Flag
	)
	cur := m.container.Peek(segment, key)
	switch {
	case cur == nil:
		if m.notified.covers(key, createdAt(md)) {
			m.stats.skipped.Add(1)
			return true
		}
		if md != nil {
			expected, lifespan = value, md.Lifespan
		}
		flags = []xcommand.Flag{xcommand.FlagPurgedFromStore}
	case cur.IsMortallyExpired(m.clock.Now()):
		// 仅有 key 时按 nil value 粗粒度移除
		expected, lifespan = nil, cur.Metadata.Lifespan
		if md != nil {
			expected, lifespan = value, md.Lifespan
		}
	default:
		return false
	}
	if err := m.triggerLifespanRemoval(ctx, key, expected, lifespan, false, flags); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: store-driven cluster removal failed",
			slog.String("key", key), slog.Any("error", err))
	}
	return true
}

func createdAt(md *xentry.Metadata) time.Time {
	if md == nil {
		return time.Time{}
	}
	return md.Created
}

// expireFromStore 是存储侧过期的本地处理，与内存扫描共用守卫。
// 内存中没有副本且该条目的事件已经发出时，既不再删除也不再通知。
func (m *Manager) expireFromStore(ctx context.Context, key string, segment int, value []byte, md *xentry.Metadata) {
	if !m.guard.TryAdd(key) {
		m.stats.skipped.Add(1)
		return
	}
	defer m.guard.Remove(key)

	var (
		matched bool
		removed *xentry.Entry
	)
	_, err := m.container.Compute(ctx, key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		if m.suppressed.Contains(key) {
			return cur, nil
		}
		if cur == nil {
			matched = !m.notified.covers(key, createdAt(md))
			return nil, nil
		}
		if !cur.IsExpired(m.clock.Now()) {
			return cur, nil
		}
		if md != nil && (!cur.SameValue(value) || cur.Metadata.Lifespan != md.Lifespan) {
			return cur, nil
		}
		matched, removed = true, cur
		return nil, nil
	})
	if err != nil {
		m.stats.failures.Add(1)
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: store expiration check failed",
			slog.String("key", key), slog.Any("error", err))
		return
	}
	if !matched {
		m.stats.skipped.Add(1)
		return
	}

	// 清理其余存储中的副本
	if _, err := m.persistence.DeleteFromAllStores(ctx, key, segment, xpersist.ModeBoth); err != nil {
		m.stats.failures.Add(1)
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: store delete after purge failed",
			slog.String("key", key), slog.Any("error", err))
	}

	ev := xentry.Event{Key: key, Value: value, Metadata: md, Source: xentry.SourceStore}
	if removed != nil {
		ev = xentry.EventFromEntry(removed, xentry.SourceStore)
	}
	_ = m.NotifyExpired(ctx, ev)
}
