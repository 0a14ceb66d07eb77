// Package xentry 定义缓存条目模型、过期判定函数和参考数据容器。
//
// # 过期判定
//
// 两类过期相互独立：
//   - 定寿过期（mortal）：lifespan ≥ 0 且 now ≥ created + lifespan
//   - 闲置过期（transient）：maxIdle ≥ 0 且 now ≥ lastUsed + maxIdle
//
// 负值表示对应维度不生效，使用 [Immortal] / [NoMaxIdle]。
// lifespan 为 0 表示条目创建即过期。
//
// # 条目快照
//
// [Entry] 是不可变快照：更新通过在 key 临界区内安装新的 *Entry 完成，
// 因此持有一个 *Entry 即可同时看到一致的 value 与 metadata。
// Touch 返回推进 LastUsed 的新快照，value 不变。
//
// # Container
//
// [Container] 是进程内数据容器：按 xxhash 分段，每段由 golang-lru 限制容量，
// Compute 在 xkeylock 提供的单 key 临界区内执行读-改-写。
// Compute 的回调内不得再访问同一个 Container（锁不可重入）。
package xentry
