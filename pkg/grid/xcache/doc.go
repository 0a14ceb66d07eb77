// Package xcache 是内嵌的参考缓存：所有写操作以命令形式经过拦截器链，
// 为过期子系统提供集群移除所需的写路径。
//
// # 拦截器链
//
//	observe → write suppression (xexpire) → visitor
//
// 观测拦截器在最外层，为每个命令记录一个 span；写抑制拦截器在命令执行期间
// 登记涉及的 key，使回收器不会误删正在写入的条目；visitor 最终作用于数据容器
// 与持久化层。
//
// # 锁
//
// 写命令在执行前获取 key 锁（[xkeylock.Striped]）。命令标志可以改变获取方式：
// [xcommand.FlagSkipLocking] 跳过获取，[xcommand.FlagZeroLockTimeout] 锁被占用时
// 立即返回 [ErrLockTimeout]。通过 [Cache.WithFlags] 得到带标志的缓存视图。
//
// 写操作在获取锁之前检查旧条目是否过期，集群模式下的同步移除会重新进入写路径，
// 因此这一检查不能放在持有锁的 visitor 中。
//
// # 事务
//
// ctx 中有活动事务（[xtx.FromContext]）时，写命令只登记到事务，提交时由事务管理器
// 依次下发 Prepare 与 Commit：Prepare 一次性获取全部 key 锁，Commit 在持有锁的前提下
// 应用修改并释放锁。
//
// # 读穿透
//
// 内存未命中时从持久化层加载。并发加载同一 key 由 singleflight 合并；
// 不存在的 key 记入短期的负缓存（ristretto）。加载到的行已过期时交给
// 过期子系统处理，并按未命中返回。
package xcache
