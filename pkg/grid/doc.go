// Package grid 提供单节点数据网格的过期处理子系统及其协作组件。
//
// 子包列表：
//   - xentry: 条目、元数据与过期判定，分段有界的内存数据容器
//   - xcommand: 写命令、命令标志与拦截器链
//   - xtx: 事务管理（Begin/Commit/Rollback/Suspend/Resume）
//   - xpersist: 持久化层，内存存储与 Redis 存储
//   - xnotify: 过期事件总线与 Redis 发布
//   - xexpire: 过期守卫、写抑制、本地回收、集群移除与事务移除
//   - xcache: 嵌入式缓存，把命令送入拦截器链并在读写路径上触发过期处理
//
// 依赖方向自上而下，xexpire 只通过小接口依赖容器、持久化、通知与缓存。
package grid
