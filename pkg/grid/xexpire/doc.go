// Package xexpire 实现缓存条目的过期处理：发现、抑制误判并安全移除过期条目。
//
// # 组成
//
//   - 过期守卫（guard）：正在因过期而移除的 key 集合，保证同一节点上每个 key 最多一个进行中的移除。
//   - 写抑制（write suppression）：有进行中写命令的 key 集合，过期处理跳过这些 key。
//     由 [Manager.Interceptor] 返回的拦截器在写命令前后登记与注销，支持同一 key 上的并发写。
//   - 本地回收器（reaper）：周期性扫描内存数据容器，随后让持久化层清理自身的过期行。
//   - 集群协调：集群模式下，lifespan 过期通过缓存的普通写路径 [Cache.RemoveExpired] 完成，
//     协调者本身从不直接修改数据容器；闲置过期属于节点本地记账，仍按本地方式处理。
//   - 事务移除：事务缓存中，集群移除在独立事务中执行，调用方的事务被挂起并在结束后恢复。
//
// # 策略
//
// [Manager] 在构造时根据配置选择一个 [Policy]：
//
//	local                      本地移除；读触发的移除是否等待、是否加锁由配置决定
//	clustered                  集群移除；读触发的行为同上
//	clustered-tx-pessimistic   只有写触发的移除需要等待；读触发的移除跳过加锁（读已持有锁）
//	clustered-tx-optimistic    总是等待移除完成；读触发的移除以零等待获取锁
//
// # 并发模型
//
// 守卫与写抑制都是基于 sync.Map 的无锁集合，只做协调提示，不提供互斥。
// value 与元数据的一致性由数据容器的单 key 临界区（Compute）保证：
// 真正决定移除之前总是在临界区内复核条目仍然过期且未被写抑制。
//
// 过期事件只在条目已从数据容器移除之后发出；同一回收周期内，
// 持久化清理总是在内存扫描（包括其异步删除与通知）完成之后开始。
//
// 设计决策: 调度使用 robfig/cron 的 Every 调度，间隔按整秒截断（最小 1 秒），
// 并以 SkipIfStillRunning 保证同一时刻只有一个周期在运行。
package xexpire
