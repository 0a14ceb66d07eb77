package xmetrics

import (
	"context"
	"time"
)

// Kind 表示观测跨度类型。
type Kind int

const (
	// KindInternal 表示节点内部操作（回收周期、本地移除）。
	KindInternal Kind = iota
	// KindClient 表示对外部依赖的调用（存储、集群写路径）。
	KindClient
	// KindProducer 表示事件发布。
	KindProducer
)

// String 返回 Kind 的可读表示。
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindClient:
		return "Client"
	case KindProducer:
		return "Producer"
	default:
		return "Unknown"
	}
}

// Status 表示观测结果状态。
type Status string

const (
	// StatusOK 表示成功。
	StatusOK Status = "ok"
	// StatusError 表示失败。
	StatusError Status = "error"
)

// Attr 表示观测属性。
type Attr struct {
	Key   string
	Value any
}

// String 创建字符串属性。
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Int 创建整数属性。
func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// Bool 创建布尔属性。
func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

// Duration 创建时间间隔属性，以纳秒记录。
func Duration(key string, value time.Duration) Attr { return Attr{Key: key, Value: value} }

// SpanOptions 定义观测跨度的创建参数。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 表示观测跨度结束时的结果。
type Result struct {
	// Status 为空时根据 Err 推导。
	Status Status
	Err    error
	Attrs  []Attr
}

func (r Result) status() Status {
	if r.Status != "" {
		return r.Status
	}
	if r.Err != nil {
		return StatusError
	}
	return StatusOK
}

// Span 表示一次观测跨度。
type Span interface {
	// End 结束观测并记录结果。实现需保证幂等。
	End(result Result)
}

// Observer 定义统一观测接口。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// RemovalRecorder 是记录过期移除的可选接口。
type RemovalRecorder interface {
	RecordRemoval(ctx context.Context, source string)
}

// NoopObserver 是空实现。
type NoopObserver struct{}

// Start 返回 ctx 和空跨度。
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 是空跨度实现。
type NoopSpan struct{}

// End 不做任何处理。
func (NoopSpan) End(Result) {}

// Start 使用 observer 开始观测，nil observer 时返回空跨度。
// 保证返回非 nil 的 context 与 Span。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}

// RecordRemoval 在 observer 实现了 [RemovalRecorder] 时记录一次移除。
func RecordRemoval(ctx context.Context, observer Observer, source string) {
	if r, ok := observer.(RemovalRecorder); ok {
		r.RecordRemoval(ctx, source)
	}
}

// Multi 组合多个 Observer，nil 会被忽略。
func Multi(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	spans := make(multiSpan, 0, len(m))
	for _, o := range m {
		var span Span
		ctx, span = Start(ctx, o, opts)
		spans = append(spans, span)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, spans
}

func (m multiObserver) RecordRemoval(ctx context.Context, source string) {
	for _, o := range m {
		RecordRemoval(ctx, o, source)
	}
}

type multiSpan []Span

// 逆序结束，内层跨度先结束。
func (s multiSpan) End(result Result) {
	for i := len(s) - 1; i >= 0; i-- {
		s[i].End(result)
	}
}
