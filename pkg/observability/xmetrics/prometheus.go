package xmetrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PromConfig 定义 Prometheus Observer 配置。
type PromConfig struct {
	// Namespace 指标命名空间，默认 "xgrid"。
	Namespace string `koanf:"namespace"`
	// ConstLabels 附加到所有指标的常量标签。
	ConstLabels map[string]string `koanf:"const_labels"`
	// GoMetrics 是否注册 Go 运行时与进程采集器。
	GoMetrics bool `koanf:"go_metrics"`
}

// PromObserver 是基于 Prometheus 的 Observer，同时实现 [RemovalRecorder]。
// 只记录指标，不产生 trace。
type PromObserver struct {
	registry *prometheus.Registry
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	removed  *prometheus.CounterVec
}

// NewPromObserver 创建 Prometheus Observer 及其独立注册表。
func NewPromObserver(cfg PromConfig) (*PromObserver, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "xgrid"
	}
	reg := prometheus.NewRegistry()
	if cfg.GoMetrics {
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegister, err)
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegister, err)
		}
	}

	p := &PromObserver{
		registry: reg,
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "operation_total",
			Help:        "Total operations.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"component", "operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "operation_duration_seconds",
			Help:        "Operation duration in seconds.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"component", "operation", "status"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "expiration_removed_total",
			Help:        "Expired entries removed.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"source"}),
	}
	for _, c := range []prometheus.Collector{p.total, p.duration, p.removed} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegister, err)
		}
	}
	return p, nil
}

// Registry 返回注册表，用于 promhttp.HandlerFor。
func (p *PromObserver) Registry() *prometheus.Registry {
	return p.registry
}

// Start 开始一次观测跨度。
func (p *PromObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, &promSpan{
		observer:  p,
		component: nonEmpty(opts.Component),
		operation: nonEmpty(opts.Operation),
		start:     time.Now(),
	}
}

// RecordRemoval 记录一次过期移除。
func (p *PromObserver) RecordRemoval(_ context.Context, source string) {
	p.removed.WithLabelValues(nonEmpty(source)).Inc()
}

type promSpan struct {
	observer  *PromObserver
	component string
	operation string
	start     time.Time
	endOnce   sync.Once
}

func (s *promSpan) End(result Result) {
	s.endOnce.Do(func() {
		status := string(result.status())
		s.observer.total.WithLabelValues(s.component, s.operation, status).Inc()
		s.observer.duration.WithLabelValues(s.component, s.operation, status).
			Observe(time.Since(s.start).Seconds())
	})
}
