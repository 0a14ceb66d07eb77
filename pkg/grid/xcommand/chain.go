package xcommand

import "context"

// Handler 执行一个命令并返回结果。
type Handler func(ctx context.Context, cmd Command) (any, error)

// Interceptor 包装命令执行。实现必须调用 next 才能让命令继续向下传递。
type Interceptor interface {
	Intercept(ctx context.Context, cmd Command, next Handler) (any, error)
}

// InterceptorFunc 让普通函数满足 Interceptor。
type InterceptorFunc func(ctx context.Context, cmd Command, next Handler) (any, error)

// Intercept 调用 f。
func (f InterceptorFunc) Intercept(ctx context.Context, cmd Command, next Handler) (any, error) {
	return f(ctx, cmd, next)
}

// Chain 将 interceptors 包装在 final 外层，interceptors[0] 最先执行。
// nil 拦截器被忽略。
func Chain(final Handler, interceptors ...Interceptor) Handler {
	h := final
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		if ic == nil {
			continue
		}
		next := h
		h = func(ctx context.Context, cmd Command) (any, error) {
			return ic.Intercept(ctx, cmd, next)
		}
	}
	return h
}

// Apply 返回把命令分派给 v 的终端 Handler。
func Apply(v Visitor) Handler {
	return func(ctx context.Context, cmd Command) (any, error) {
		return cmd.Accept(ctx, v)
	}
}
