package xnotify

import "errors"

var (
	// ErrNilListener 表示监听器为 nil。
	ErrNilListener = errors.New("xnotify: nil listener")

	// ErrNilClient 表示 Redis 客户端为 nil。
	ErrNilClient = errors.New("xnotify: nil redis client")

	// ErrEmptyChannel 表示发布频道为空。
	ErrEmptyChannel = errors.New("xnotify: empty channel")

	// ErrListenerPanic 表示监听器发生 panic。
	ErrListenerPanic = errors.New("xnotify: listener panicked")
)
