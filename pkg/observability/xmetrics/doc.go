// Package xmetrics 提供 xgrid 组件共用的观测接口与实现。
//
// 业务代码只依赖 [Observer]/[Span] 接口；移除计数等领域指标通过可选接口
// [RemovalRecorder] 暴露，观测实现按需实现。
//
// 提供两种实现：
//   - [NewOTelObserver]：OpenTelemetry tracer + meter
//   - [NewPromObserver]：Prometheus 注册表（供 /metrics 暴露）
//
// 多个实现可用 [Multi] 组合。
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xexpire",
//		Operation: "process_expiration",
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
//   - xgrid.operation.total      操作次数，属性 component/operation/status
//   - xgrid.operation.duration   操作耗时（秒）
//   - xgrid.expiration.removed   确认移除的过期条目数，属性 source
//
// Prometheus 实现使用同样的名字，点号替换为下划线。
package xmetrics
