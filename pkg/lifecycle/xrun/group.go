package xrun

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Option 定义 Group 可选配置。
type Option func(*Group)

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(g *Group) {
		if l != nil {
			g.logger = l
		}
	}
}

// Group 并发运行一组服务并协调关闭。Go 与 Cancel 可并发调用，Wait 只调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	logger   *slog.Logger
}

// NewGroup 创建 Group，返回的 context 在任一服务出错或 Cancel 时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	g := &Group{
		eg:       eg,
		ctx:      egCtx,
		causeCtx: causeCtx,
		cancel:   cancel,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, egCtx
}

// Go 以 name 启动一个服务。服务应在 ctx 结束后尽快返回。
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		g.logger.Debug("xrun: service starting", slog.String("service", name))
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Warn("xrun: service exited with error",
				slog.String("service", name), slog.Any("error", err))
		} else {
			g.logger.Debug("xrun: service stopped", slog.String("service", name))
		}
		return err
	})
}

// Cancel 以 cause 取消所有服务。cause 不应包装 context.Canceled，
// 否则会被 Wait 当作普通取消过滤掉。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有服务结束。
//
// 组被取消时返回显式的取消原因，没有原因则返回 nil；
// 服务自身产生的 context.Canceled 原样返回。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	cancelled := g.causeCtx.Err() != nil
	if errors.Is(err, context.Canceled) && !cancelled {
		return err
	}
	if err == nil || errors.Is(err, context.Canceled) {
		if cancelled {
			if cause := context.Cause(g.causeCtx); !errors.Is(cause, context.Canceled) {
				return cause
			}
		}
		return nil
	}
	return err
}
