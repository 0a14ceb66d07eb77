package xlog

import "errors"

var (
	// ErrUnknownLevel 表示无法识别的日志级别。
	ErrUnknownLevel = errors.New("xlog: unknown level")

	// ErrUnknownFormat 表示无法识别的输出格式。
	ErrUnknownFormat = errors.New("xlog: unknown format")

	// ErrInvalidRotation 表示轮转参数无效。
	ErrInvalidRotation = errors.New("xlog: invalid rotation")
)
