package xkeylock

import "errors"

var (
	// ErrLockNotHeld 表示锁已被释放。
	ErrLockNotHeld = errors.New("xkeylock: lock not held")

	// ErrLockOccupied 表示 TryAcquire 时锁被占用。
	ErrLockOccupied = errors.New("xkeylock: lock occupied")

	// ErrInvalidStripes 表示槽数量无效（必须为 2 的幂）。
	ErrInvalidStripes = errors.New("xkeylock: invalid stripe count")

	// ErrNilContext 表示 ctx 为 nil。
	ErrNilContext = errors.New("xkeylock: nil context")
)
