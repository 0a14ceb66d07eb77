package xexpire

import (
	"errors"
	"fmt"
)

var (
	// ErrNilContainer 表示未提供数据容器。
	ErrNilContainer = errors.New("xexpire: nil data container")

	// ErrNilPersistence 表示未提供持久化层。
	ErrNilPersistence = errors.New("xexpire: nil persistence")

	// ErrNilNotifier 表示未提供通知总线。
	ErrNilNotifier = errors.New("xexpire: nil notifier")

	// ErrNilCache 表示集群模式下未提供缓存。
	ErrNilCache = errors.New("xexpire: clustered mode requires a cache")

	// ErrNilTxManager 表示事务模式下未提供事务管理器。
	ErrNilTxManager = errors.New("xexpire: transactional mode requires a transaction manager")

	// ErrInvalidConfig 表示配置无效。
	ErrInvalidConfig = errors.New("xexpire: invalid config")

	// ErrAlreadyStarted 表示回收器已启动。
	ErrAlreadyStarted = errors.New("xexpire: reaper already started")

	// ErrStopped 表示 Manager 已停止，不能再次启动。
	ErrStopped = errors.New("xexpire: manager stopped")
)

// RemovalErrorKind 区分事务移除失败的阶段。
type RemovalErrorKind int

const (
	// PrepareFailed 表示开启事务或发出条件删除失败。
	PrepareFailed RemovalErrorKind = iota + 1
	// CommitFailed 表示提交失败。
	CommitFailed
	// Heuristic 表示提交产生启发式结果（部分或全部回滚）。
	Heuristic
	// RolledBack 表示事务在提交过程中被回滚。
	RolledBack
)

func (k RemovalErrorKind) String() string {
	switch k {
	case PrepareFailed:
		return "prepare-failed"
	case CommitFailed:
		return "commit-failed"
	case Heuristic:
		return "heuristic"
	case RolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("RemovalErrorKind(%d)", int(k))
	}
}

// RemovalError 是事务移除失败，携带原始原因。
type RemovalError struct {
	Kind RemovalErrorKind
	Key  string
	Err  error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("xexpire: remove expired %q: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *RemovalError) Unwrap() error { return e.Err }
