package xcache

import "errors"

var (
	// ErrNilContainer 表示未提供数据容器。
	ErrNilContainer = errors.New("xcache: nil container")

	// ErrNilPersistence 表示未提供持久化层。
	ErrNilPersistence = errors.New("xcache: nil persistence")

	// ErrNilExpiration 表示未提供过期管理器。
	ErrNilExpiration = errors.New("xcache: nil expiration manager")

	// ErrLockTimeout 表示以零等待获取 key 锁时锁已被占用。
	ErrLockTimeout = errors.New("xcache: lock acquisition timeout")

	// ErrUnknownTransaction 表示 Commit 找不到对应的 Prepare。
	ErrUnknownTransaction = errors.New("xcache: unknown transaction")

	// ErrEmptyKey 表示 key 为空。
	ErrEmptyKey = errors.New("xcache: empty key")

	// ErrClosed 表示缓存已关闭。
	ErrClosed = errors.New("xcache: closed")
)
