// Package xrun 管理进程内一组长期运行的服务。
//
// [Group] 基于 errgroup：任一服务返回错误或父 context 结束时，
// 其余服务都会收到取消。[Group.Cancel] 可以带上退出原因（如 [SignalError]），
// [Group.Wait] 会返回该原因而不是 context.Canceled。
//
// 常用服务：
//
//   - [Signals] 收到系统信号时以 *SignalError 取消整个组
//   - [Ticker] 周期执行任务，如输出回收统计
//   - [HTTPServer] 在给定 listener 上提供 HTTP 服务，取消时优雅关闭
//
// 示例：
//
//	g, ctx := xrun.NewGroup(ctx, xrun.WithLogger(logger))
//	g.Go("signals", xrun.Signals(g))
//	g.Go("metrics", xrun.HTTPServer(srv, ln, 10*time.Second))
//	err := g.Wait()
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常退出
//	}
package xrun
