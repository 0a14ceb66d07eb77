package xrun

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultSignals 返回默认监听的信号：SIGINT 与 SIGTERM。
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// notify 可在测试中替换为注入的信号源。
var notify = func(ch chan<- os.Signal, sigs ...os.Signal) (stop func()) {
	signal.Notify(ch, sigs...)
	return func() { signal.Stop(ch) }
}

// Signals 返回信号监听服务：收到 sigs 之一（为空时用 [DefaultSignals]）时
// 以 *SignalError 取消 g。
func Signals(g *Group, sigs ...os.Signal) func(ctx context.Context) error {
	if len(sigs) == 0 {
		sigs = DefaultSignals()
	}
	return func(ctx context.Context) error {
		ch := make(chan os.Signal, 1)
		stop := notify(ch, sigs...)
		defer stop()
		select {
		case sig := <-ch:
			g.logger.Info("xrun: received signal", slog.String("signal", sig.String()))
			g.Cancel(&SignalError{Signal: sig})
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Ticker 返回每隔 interval 执行一次 fn 的服务。fn 返回错误时服务结束。
func Ticker(interval time.Duration, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// HTTPServer 返回在 ln 上运行 srv 的服务。ctx 结束时在 shutdownTimeout 内优雅关闭。
func HTTPServer(srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil || ln == nil {
			return ErrNilServer
		}
		served := make(chan error, 1)
		go func() { served <- srv.Serve(ln) }()

		select {
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		if serr := <-served; !errors.Is(serr, http.ErrServerClosed) {
			err = errors.Join(err, serr)
		}
		return err
	}
}
