package xpersist

import "errors"

var (
	// ErrNilStore 表示存储为 nil。
	ErrNilStore = errors.New("xpersist: nil store")

	// ErrNilClient 表示 Redis 客户端为 nil。
	ErrNilClient = errors.New("xpersist: nil redis client")

	// ErrNilListener 表示清理回调为 nil。
	ErrNilListener = errors.New("xpersist: nil purge listener")

	// ErrDuplicateStore 表示存储名称重复。
	ErrDuplicateStore = errors.New("xpersist: duplicate store name")

	// ErrStoreUnavailable 表示存储熔断器处于打开状态。
	ErrStoreUnavailable = errors.New("xpersist: store unavailable")

	// ErrManagerClosed 表示 Manager 已关闭。
	ErrManagerClosed = errors.New("xpersist: manager closed")

	// ErrCorruptRow 表示存储中的行无法解析。
	ErrCorruptRow = errors.New("xpersist: corrupt row")
)
