// Package xnotify 提供过期事件通知总线。
//
// [Bus] 把每个已确认的过期事件依次交给订阅的 [Listener]。
// 单个监听器失败或 panic 不影响其他监听器，错误通过 errors.Join 合并返回。
//
// [RedisPublisher] 是一个监听器，把事件编码为 JSON 发布到 Redis 频道，
// 供集群外部的消费者订阅：
//
//	bus := xnotify.New()
//	pub, _ := xnotify.NewRedisPublisher(client, "xgrid:expired")
//	bus.Subscribe(pub)
package xnotify
