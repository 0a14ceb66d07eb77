// Package xkeylock 提供基于 key 的进程内分段互斥锁表（striped lock）。
//
// 每个 key 通过 xxhash 映射到固定数量的锁槽（stripe）之一，
// 同一槽内的 key 互斥。槽数量固定，内存占用与 key 数量无关，
// 适用于数据容器 compute、写路径加锁等“单 key 临界区”场景。
//
// # 特性
//
//   - Acquire 支持 ctx 超时/取消
//   - TryAcquire 非阻塞获取（等价于零等待超时）
//   - AcquireAll 按槽序号升序批量获取，避免多 key 加锁死锁
//   - Do 在临界区内执行函数，自动释放
//   - Handle.Unlock 幂等（首次返回 nil，后续返回 ErrLockNotHeld）
//
// # 注意事项
//
// 锁不可重入。不同 key 可能落在同一槽，持有一个 key 的锁时
// 再获取另一个 key 可能阻塞在自己持有的槽上；需要多个 key 时使用 AcquireAll。
package xkeylock
