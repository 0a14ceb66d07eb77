package xcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/util/xkeylock"
)

// heldLocksKey 标记 ctx 的调用方已持有所需的 key 锁（事务提交阶段）。
type heldLocksKey struct{}

func withHeldLocks(ctx context.Context) context.Context {
	return context.WithValue(ctx, heldLocksKey{}, true)
}

func locksHeld(ctx context.Context) bool {
	held, _ := ctx.Value(heldLocksKey{}).(bool)
	return held
}

type noopHandle struct{}

func (noopHandle) Unlock() error { return nil }

// stagedTx 是已 prepare 的事务。
type stagedTx struct {
	mods []xcommand.Command
	lock xkeylock.Handle
}

type visitor struct {
	c *core
}

// lock 按命令标志获取 keys 的锁。
func (v *visitor) lock(ctx context.Context, flags xcommand.Flag, keys ...string) (xkeylock.Handle, error) {
	if len(keys) == 0 || flags.Has(xcommand.FlagSkipLocking) || locksHeld(ctx) {
		return noopHandle{}, nil
	}
	if flags.Has(xcommand.FlagZeroLockTimeout) {
		if len(keys) == 1 {
			h, err := v.c.locks.TryAcquire(keys[0])
			if errors.Is(err, xkeylock.ErrLockOccupied) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, keys[0])
			}
			return h, err
		}
		// 多 key 的零等待：以已取消的 ctx 获取，任何一个槽被占用都立即失败
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		h, err := v.c.locks.AcquireAll(cctx, keys)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, keys)
		}
		return h, nil
	}
	if len(keys) == 1 {
		return v.c.locks.Acquire(ctx, keys[0])
	}
	return v.c.locks.AcquireAll(ctx, keys)
}

func unlock(h xkeylock.Handle) {
	_ = h.Unlock() //nolint:errcheck // 首次 Unlock 不会失败
}

func (v *visitor) VisitPut(ctx context.Context, cmd *xcommand.PutCommand) (any, error) {
	h, err := v.lock(ctx, cmd.Flags(), cmd.Key)
	if err != nil {
		return nil, err
	}
	defer unlock(h)
	return v.put(ctx, cmd.Flags(), cmd.Key, cmd.Value, cmd.Lifespan, cmd.MaxIdle)
}

// put 在已持有锁的前提下写入内存与可写存储，返回未过期的旧值。
func (v *visitor) put(ctx context.Context, flags xcommand.Flag, key string, value []byte,
	lifespan, maxIdle time.Duration) ([]byte, error) {
	version, err := v.c.versions.Next()
	if err != nil {
		return nil, err
	}
	now := v.c.clock.Now()
	next := xentry.NewEntry(key, value, xentry.NewMetadata(lifespan, maxIdle, now))
	next.Version = version

	if !flags.Has(xcommand.FlagSkipStore) {
		row := xpersist.Row{Key: key, Value: value, Metadata: next.Metadata}
		if err := v.c.persistence.Write(ctx, row, xpersist.ModeBoth); err != nil {
			return nil, fmt.Errorf("xcache: write %s: %w", key, err)
		}
	}
	var prev []byte
	_, err = v.c.container.Compute(ctx, key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		if cur != nil && !cur.IsExpired(now) {
			prev = cur.Value
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	v.c.forgetMissing(key)
	return prev, nil
}

func (v *visitor) VisitPutMap(ctx context.Context, cmd *xcommand.PutMapCommand) (any, error) {
	keys := cmd.Keys()
	h, err := v.lock(ctx, cmd.Flags(), keys...)
	if err != nil {
		return nil, err
	}
	defer unlock(h)
	for _, k := range keys {
		if _, err := v.put(ctx, cmd.Flags(), k, cmd.Entries[k], cmd.Lifespan, cmd.MaxIdle); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (v *visitor) VisitReplace(ctx context.Context, cmd *xcommand.ReplaceCommand) (any, error) {
	h, err := v.lock(ctx, cmd.Flags(), cmd.Key)
	if err != nil {
		return false, err
	}
	defer unlock(h)

	cur := v.c.container.Peek(v.c.container.Segment(cmd.Key), cmd.Key)
	if cur == nil || cur.IsExpired(v.c.clock.Now()) {
		return false, nil
	}
	if cmd.Expected != nil && !cur.SameValue(cmd.Expected) {
		return false, nil
	}
	if _, err := v.put(ctx, cmd.Flags(), cmd.Key, cmd.Value, cmd.Lifespan, cmd.MaxIdle); err != nil {
		return false, err
	}
	return true, nil
}

func (v *visitor) VisitRemove(ctx context.Context, cmd *xcommand.RemoveCommand) (any, error) {
	h, err := v.lock(ctx, cmd.Flags(), cmd.Key)
	if err != nil {
		return nil, err
	}
	defer unlock(h)

	removed, err := v.c.container.Remove(ctx, cmd.Key)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Has(xcommand.FlagSkipStore) {
		if _, err := v.c.persistence.DeleteFromAllStores(ctx, cmd.Key,
			v.c.container.Segment(cmd.Key), xpersist.ModeBoth); err != nil {
			return nil, fmt.Errorf("xcache: delete %s: %w", cmd.Key, err)
		}
	}
	if removed == nil || removed.IsExpired(v.c.clock.Now()) {
		return nil, nil
	}
	return removed.Value, nil
}

// VisitRemoveExpired 条件删除过期条目，删除成功后从存储删除并发出过期事件。
//
// 内存中没有该 key 时，只给 key 或带 FlagPurgedFromStore 的命令按存储中的行处理：
// 删除其余存储中的副本，有行被删除或行已被清理方删除时发出存储事件。
// 该 key 的过期事件已经发出过时不再重复。
func (v *visitor) VisitRemoveExpired(ctx context.Context, cmd *xcommand.RemoveExpiredCommand) (any, error) {
	h, err := v.lock(ctx, cmd.Flags(), cmd.Key)
	if err != nil {
		return false, err
	}
	defer unlock(h)

	var (
		removed *xentry.Entry
		absent  bool
	)
	_, err = v.c.container.Compute(ctx, cmd.Key, func(cur *xentry.Entry) (*xentry.Entry, error) {
		if cur == nil {
			absent = true
			return nil, nil
		}
		if !cur.IsMortallyExpired(v.c.clock.Now()) {
			return cur, nil
		}
		// 只有 key 时不比较 value 与 lifespan
		if cmd.Value != nil && (!cur.SameValue(cmd.Value) || cur.Metadata.Lifespan != cmd.Lifespan) {
			return cur, nil
		}
		removed = cur
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	purged := cmd.Flags().Has(xcommand.FlagPurgedFromStore)
	storeOnly := absent && (cmd.Value == nil || purged)
	if removed == nil && !storeOnly {
		return false, nil
	}
	if removed == nil && v.c.expiration.AlreadyNotified(cmd.Key, time.Time{}) {
		return false, nil
	}

	seg := v.c.container.Segment(cmd.Key)
	deleted, err := v.c.persistence.DeleteFromAllStores(ctx, cmd.Key, seg, xpersist.ModeBoth)
	if err != nil {
		v.c.logger.LogAttrs(ctx, slog.LevelWarn, "xcache: store delete on expiration failed",
			slog.String("key", cmd.Key), slog.Any("error", err))
	}

	var ev xentry.Event
	switch {
	case removed != nil:
		ev = xentry.EventFromEntry(removed, xentry.SourceMemory)
	case deleted || purged:
		// 只存在于存储中的行
		ev = xentry.Event{Key: cmd.Key, Value: cmd.Value, Source: xentry.SourceStore}
	default:
		return false, nil
	}
	if err := v.c.expiration.NotifyExpired(ctx, ev); err != nil {
		v.c.logger.LogAttrs(ctx, slog.LevelDebug, "xcache: expiration listener failed",
			slog.String("key", cmd.Key), slog.Any("error", err))
	}
	return true, nil
}

// VisitClear 清空内存、负缓存与可写存储。
func (v *visitor) VisitClear(ctx context.Context, cmd *xcommand.ClearCommand) (any, error) {
	v.c.container.Clear()
	if v.c.negative != nil {
		v.c.negative.Clear()
	}
	if cmd.Flags().Has(xcommand.FlagSkipStore) {
		return nil, nil
	}
	return nil, v.c.persistence.Clear(ctx)
}

// VisitPrepare 一次性获取事务涉及的全部 key 锁，并暂存修改等待提交。
// 加锁策略来自修改自身的标志，见 [xcommand.LockFlags]。
func (v *visitor) VisitPrepare(ctx context.Context, cmd *xcommand.PrepareCommand) (any, error) {
	keys := xcommand.AffectedKeys(ctx, cmd.Modifications...)
	h, err := v.lock(ctx, xcommand.LockFlags(cmd.Flags(), cmd.Modifications...), keys...)
	if err != nil {
		return nil, err
	}
	st := &stagedTx{mods: cmd.Modifications, lock: h}
	if _, loaded := v.c.staged.LoadOrStore(cmd.TxID, st); loaded {
		unlock(h)
		return nil, fmt.Errorf("xcache: transaction %s already prepared", cmd.TxID)
	}
	if cmd.OnePhase {
		return v.VisitCommit(ctx, &xcommand.CommitCommand{Base: cmd.Base, TxID: cmd.TxID})
	}
	return nil, nil
}

// VisitCommit 按登记顺序应用修改并释放锁。
// 某条修改失败时后续修改不再应用，已应用的修改不会撤销。
func (v *visitor) VisitCommit(ctx context.Context, cmd *xcommand.CommitCommand) (any, error) {
	val, ok := v.c.staged.LoadAndDelete(cmd.TxID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, cmd.TxID)
	}
	st := val.(*stagedTx)
	defer unlock(st.lock)

	lctx := withHeldLocks(ctx)
	for _, mod := range st.mods {
		if _, err := mod.Accept(lctx, v); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// VisitRollback 丢弃暂存的修改并释放锁。未 prepare 的事务直接返回。
func (v *visitor) VisitRollback(_ context.Context, cmd *xcommand.RollbackCommand) (any, error) {
	if val, ok := v.c.staged.LoadAndDelete(cmd.TxID); ok {
		unlock(val.(*stagedTx).lock)
	}
	return nil, nil
}

var _ xcommand.Visitor = (*visitor)(nil)
