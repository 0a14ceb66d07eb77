// Package xpersist 提供缓存的持久化层：若干 [Store] 的组合，以及过期相关的存储操作。
//
// # 过期相关操作
//
//   - [Manager.PurgeExpired]：让每个可写存储清理自身的过期行，
//     每清理一行回调一次 [PurgeListener]。能给出完整行的存储调用
//     HandleStoreExpirationEntry，只知道 key 的存储调用 HandleStoreExpiration。
//   - [Manager.DeleteFromAllStores]：按 [AccessMode] 并行删除所有匹配存储中的 key，
//     返回是否有任何存储真正删除了一行。
//   - [Manager.DeleteFromAllStoresAsync]：同上，在后台执行并按配置重试，
//     结果通过 channel 返回。调用方 ctx 的取消不会中断已开始的删除。
//   - [Manager.HasWriter]：是否存在可写存储。读路径据此决定过期移除是否需要移交给 worker。
//
// # 存储实现
//
// [MemoryStore] 是进程内存储，清理时给出完整行。
// [RedisStore] 以 hash 保存行、以 ZSET 维护过期索引，清理时只给出 key；
// 所有访问经过 gobreaker 熔断，共享存储可配置 redsync 清理锁（同一时刻只有一个节点清理）
// 以及 redis_rate 清理限速。
package xpersist
