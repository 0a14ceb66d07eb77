// Package xcommand 定义缓存写命令、命令标志、修改访问器与拦截器链。
//
// # 命令
//
// 每个写操作都表示为一个 [Command]：[PutCommand]、[RemoveCommand]、[ReplaceCommand]、
// [PutMapCommand]、[RemoveExpiredCommand]、[ClearCommand]，以及事务两阶段的
// [PrepareCommand]/[CommitCommand]/[RollbackCommand]。
// 命令通过 Accept 分派到 [Visitor]，执行端（如参考缓存）以 Visitor 的形式实现各命令语义。
//
// # 拦截器链
//
// [Chain] 将多个 [Interceptor] 组合成一个 [Handler]，形状与 gRPC 一元拦截器一致：
//
//	h := xcommand.Chain(apply, suppression, tracing)
//	res, err := h(ctx, &xcommand.PutCommand{Key: "k", Value: v})
//
// 第一个拦截器位于最外层。
//
// # 标志
//
// [Flag] 是位集合，用于让内部调用绕过加锁（[FlagSkipLocking]）
// 或以零等待获取锁（[FlagZeroLockTimeout]）。
package xcommand
