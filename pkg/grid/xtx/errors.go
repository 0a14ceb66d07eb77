package xtx

import "errors"

var (
	// ErrNoHandler 表示提交时未绑定命令处理器。
	ErrNoHandler = errors.New("xtx: no command handler bound")

	// ErrNoTransaction 表示 ctx 中没有事务。
	ErrNoTransaction = errors.New("xtx: no transaction")

	// ErrNestedTransaction 表示 ctx 中已有活动事务，不支持嵌套。
	ErrNestedTransaction = errors.New("xtx: nested transactions are not supported")

	// ErrInvalidState 表示事务状态不允许当前操作。
	ErrInvalidState = errors.New("xtx: invalid transaction state")

	// ErrRolledBack 表示事务在提交过程中被回滚（prepare 失败或被标记为仅回滚）。
	ErrRolledBack = errors.New("xtx: transaction rolled back")

	// ErrHeuristicRollback 表示 prepare 成功但 commit 失败，随后回滚成功。
	ErrHeuristicRollback = errors.New("xtx: heuristic rollback")

	// ErrHeuristicMixed 表示 prepare 成功但 commit 失败，且回滚也失败，结果不确定。
	ErrHeuristicMixed = errors.New("xtx: heuristic mixed outcome")
)
