package xexpire

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xtx"
)

// removeInTx 在独立事务中执行条件删除。
// 调用方 ctx 中的事务先被挂起，结束后恰好恢复一次。
func (m *Manager) removeInTx(ctx context.Context, cache Cache, key string, value []byte, lifespan time.Duration) error {
	base, suspended := m.txm.Suspend(ctx)
	defer func() {
		if _, err := m.txm.Resume(base, suspended); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: resume suspended transaction",
				slog.String("key", key), slog.Any("error", err))
		}
	}()

	txCtx, tx, err := m.txm.Begin(base)
	if err != nil {
		return &RemovalError{Kind: PrepareFailed, Key: key, Err: err}
	}
	if _, err := cache.RemoveExpired(txCtx, key, value, lifespan); err != nil {
		if rbErr := m.txm.Rollback(txCtx, tx); rbErr != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: rollback expiration transaction",
				slog.String("key", key), slog.Any("error", rbErr))
		}
		return &RemovalError{Kind: PrepareFailed, Key: key, Err: err}
	}
	if err := m.txm.Commit(txCtx, tx); err != nil {
		return &RemovalError{Kind: commitErrorKind(err), Key: key, Err: err}
	}
	return nil
}

func commitErrorKind(err error) RemovalErrorKind {
	switch {
	case errors.Is(err, xtx.ErrHeuristicMixed), errors.Is(err, xtx.ErrHeuristicRollback):
		return Heuristic
	case errors.Is(err, xtx.ErrRolledBack):
		return RolledBack
	default:
		return CommitFailed
	}
}
