// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 根据配置构建 slog 日志记录器，支持动态级别与文件轮转
//   - xmetrics: Observer/Span 接口，OpenTelemetry 与 Prometheus 两种实现
//
// 网格的各个包只依赖 *slog.Logger 与 xmetrics.Observer 接口，
// 具体实现在进程入口组装。
package observability
