// Package xtx 提供进程内事务管理器。
//
// 事务通过 context 传递（与 xctx 的 WithXxx/FromContext 约定一致），没有线程局部状态：
//
//	ctx, tx, err := mgr.Begin(ctx)
//	... 在 ctx 上执行写命令，命令被登记到 tx ...
//	err = mgr.Commit(ctx, tx)
//
// Commit 通过绑定的 [xcommand.Handler] 执行两阶段提交：
// 先发送 [xcommand.PrepareCommand]（携带全部修改），成功后发送 [xcommand.CommitCommand]。
// prepare 失败时发送 [xcommand.RollbackCommand] 并返回 [ErrRolledBack]；
// commit 失败属于启发式结果，返回 [ErrHeuristicRollback] 或 [ErrHeuristicMixed]。
//
// Suspend 返回不再携带事务的 ctx 以及被挂起的事务，Resume 将其重新放回 ctx。
// 挂起期间事务保持 Active，可以稍后继续使用。
package xtx
