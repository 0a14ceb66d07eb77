package xtx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
)

// Option 定义 Manager 可选配置。
type Option func(*Manager)

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHandler 设置提交时使用的命令处理器，等价于构造后调用 [Manager.Bind]。
func WithHandler(h xcommand.Handler) Option {
	return func(m *Manager) {
		if h != nil {
			m.handler.Store(&h)
		}
	}
}

// Manager 管理事务的生命周期。
type Manager struct {
	logger  *slog.Logger
	handler atomic.Pointer[xcommand.Handler]
	active  sync.Map // id -> *Transaction
}

// New 创建事务管理器。
func New(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Bind 绑定提交时使用的命令处理器（通常是缓存的拦截器链）。
// 缓存与事务管理器互相引用，因此允许在构造后绑定。
func (m *Manager) Bind(h xcommand.Handler) {
	if h != nil {
		m.handler.Store(&h)
	}
}

// Begin 开启新事务并返回携带它的 ctx。
// ctx 中已有 Active 事务时返回 [ErrNestedTransaction]。
func (m *Manager) Begin(ctx context.Context) (context.Context, *Transaction, error) {
	if cur := FromContext(ctx); cur != nil && cur.Status() == StatusActive {
		return ctx, nil, fmt.Errorf("%w: %s", ErrNestedTransaction, cur.ID())
	}
	tx := &Transaction{id: uuid.NewString(), status: StatusActive}
	m.active.Store(tx.id, tx)
	return WithTransaction(ctx, tx), tx, nil
}

// Commit 以两阶段方式提交 tx。
//
// 返回的错误可用 errors.Is 匹配：[ErrRolledBack]、[ErrHeuristicRollback]、
// [ErrHeuristicMixed]、[ErrInvalidState]、[ErrNoHandler]。
func (m *Manager) Commit(ctx context.Context, tx *Transaction) error {
	if tx == nil {
		return ErrNoTransaction
	}
	prev, err := tx.transition(StatusPreparing, StatusActive, StatusMarkedRollback)
	if err != nil {
		return err
	}
	defer m.active.Delete(tx.id)

	if prev == StatusMarkedRollback {
		tx.set(StatusRolledBack)
		return fmt.Errorf("%w: %s marked rollback-only", ErrRolledBack, tx.id)
	}

	mods := tx.Modifications()
	if len(mods) == 0 {
		tx.set(StatusCommitted)
		return nil
	}

	h := m.handler.Load()
	if h == nil {
		tx.set(StatusRolledBack)
		return ErrNoHandler
	}
	handle := *h

	if _, err := handle(ctx, &xcommand.PrepareCommand{TxID: tx.id, Modifications: mods}); err != nil {
		m.rollbackQuietly(ctx, handle, tx)
		return fmt.Errorf("%w: prepare %s: %w", ErrRolledBack, tx.id, err)
	}

	tx.set(StatusCommitting)
	if _, err := handle(ctx, &xcommand.CommitCommand{TxID: tx.id}); err != nil {
		if _, rbErr := handle(ctx, &xcommand.RollbackCommand{TxID: tx.id}); rbErr != nil {
			tx.set(StatusRolledBack)
			return fmt.Errorf("%w: commit %s: %w (rollback: %w)", ErrHeuristicMixed, tx.id, err, rbErr)
		}
		tx.set(StatusRolledBack)
		return fmt.Errorf("%w: commit %s: %w", ErrHeuristicRollback, tx.id, err)
	}
	tx.set(StatusCommitted)
	return nil
}

// Rollback 回滚尚未提交的 tx。
func (m *Manager) Rollback(ctx context.Context, tx *Transaction) error {
	if tx == nil {
		return ErrNoTransaction
	}
	if _, err := tx.transition(StatusRolledBack, StatusActive, StatusMarkedRollback); err != nil {
		return err
	}
	m.active.Delete(tx.id)
	// 未 prepare 的事务没有持有任何资源，无需下发 RollbackCommand。
	return nil
}

func (m *Manager) rollbackQuietly(ctx context.Context, handle xcommand.Handler, tx *Transaction) {
	if _, err := handle(ctx, &xcommand.RollbackCommand{TxID: tx.id}); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xtx: rollback after failed prepare",
			slog.String("tx", tx.id), slog.Any("error", err))
	}
	tx.set(StatusRolledBack)
}

// Suspend 返回不携带事务的 ctx 以及被挂起的事务（没有则为 nil）。
func (m *Manager) Suspend(ctx context.Context) (context.Context, *Transaction) {
	tx := FromContext(ctx)
	if tx == nil {
		return ctx, nil
	}
	return WithTransaction(ctx, nil), tx
}

// Resume 将 tx 放回 ctx。tx 为 nil 时原样返回 ctx。
// tx 已结束时返回 [ErrInvalidState]。
func (m *Manager) Resume(ctx context.Context, tx *Transaction) (context.Context, error) {
	if tx == nil {
		return ctx, nil
	}
	if s := tx.Status(); s != StatusActive && s != StatusMarkedRollback {
		return ctx, fmt.Errorf("%w: resume %s in %s", ErrInvalidState, tx.id, s)
	}
	return WithTransaction(ctx, tx), nil
}

// ActiveCount 返回尚未结束的事务数量。
func (m *Manager) ActiveCount() int {
	n := 0
	m.active.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
