package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 表示因收到系统信号而退出，配合 errors.Is 使用。
	ErrSignal = errors.New("xrun: received signal")

	// ErrNilFunc 表示服务函数为 nil。
	ErrNilFunc = errors.New("xrun: nil service func")

	// ErrNilServer 表示 HTTPServer 的 server 或 listener 为 nil。
	ErrNilServer = errors.New("xrun: nil http server or listener")

	// ErrInvalidInterval 表示 Ticker 间隔不是正数。
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError 记录触发退出的信号。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSignal, e.Signal)
}

// Is 使 errors.Is(err, ErrSignal) 成立。
func (e *SignalError) Is(target error) bool {
	return target == ErrSignal
}
