package xexpire

import (
	"context"
	"log/slog"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xtx"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
)

// expireClustered 在临界区内取当前条目的快照，仍处于 lifespan 过期时发起集群移除。
// 条目已消失或已被刷新时不做任何事。
func (m *Manager) expireClustered(ctx context.Context, key string, sync bool, flags []xcommand.Flag) {
	snap, err := m.container.Compute(ctx, key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		return cur, nil
	})
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: snapshot failed",
			slog.String("key", key), slog.Any("error", err))
		return
	}
	if snap == nil || !snap.IsMortallyExpired(m.clock.Now()) {
		m.stats.skipped.Add(1)
		return
	}
	if err := m.triggerLifespanRemoval(ctx, key, snap.Value, snap.Metadata.Lifespan, sync, flags); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelDebug, "xexpire: cluster removal failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

// TriggerLifespanRemoval 通过缓存写路径移除 lifespan 过期的 key。
//
// 只有当前 value 与 lifespan 仍与期望一致时才会移除；value 为 nil 时只按 key 判定。
// key 已有进行中的移除时直接返回 nil。sync 为 false 时移除在执行器上进行，
// 结果只记录日志。守卫在移除结束后释放。
func (m *Manager) TriggerLifespanRemoval(ctx context.Context, key string, value []byte, lifespan time.Duration, sync bool) error {
	return m.triggerLifespanRemoval(ctx, key, value, lifespan, sync, nil)
}

func (m *Manager) triggerLifespanRemoval(ctx context.Context, key string, value []byte, lifespan time.Duration,
	sync bool, flags []xcommand.Flag) error {
	if !m.guard.TryAdd(key) {
		m.stats.skipped.Add(1)
		return nil
	}
	run := func(ctx context.Context) error {
		defer m.guard.Remove(key)
		return m.removeLifespanExpired(ctx, key, value, lifespan, flags)
	}
	if sync {
		return run(ctx)
	}
	// 异步移除不属于调用方的事务
	actx := xtx.WithTransaction(context.WithoutCancel(ctx), nil)
	m.submit(func() { _ = run(actx) })
	return nil
}

func (m *Manager) removeLifespanExpired(ctx context.Context, key string, value []byte, lifespan time.Duration,
	flags []xcommand.Flag) (err error) {
	cache := m.currentCache()
	if cache == nil {
		m.stats.failures.Add(1)
		return ErrNilCache
	}
	if len(flags) > 0 {
		cache = cache.WithFlags(flags...)
	}

	ctx, span := xmetrics.Start(ctx, m.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "cluster_remove",
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.Bool("transactional", m.policy.Transactional()),
			xmetrics.String("flags", xcommand.Combine(flags...).String()),
		},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if m.policy.Transactional() {
		err = m.removeInTx(ctx, cache, key, value, lifespan)
	} else {
		_, err = cache.RemoveExpired(ctx, key, value, lifespan)
	}
	if err != nil {
		m.stats.failures.Add(1)
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: cluster removal failed",
			slog.String("key", key), slog.Any("error", err))
		return err
	}
	m.stats.clusterRemovals.Add(1)
	return nil
}
