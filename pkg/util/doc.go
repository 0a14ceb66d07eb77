// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 基于 sonyflake 的单调递增 ID，用作条目版本号
//   - xkeylock: 分片的按 key 互斥锁，支持 context 超时、非阻塞获取与多 key 有序加锁
//   - xpool: 泛型 Worker Pool，可配置 worker/队列大小、优雅关闭
package util
