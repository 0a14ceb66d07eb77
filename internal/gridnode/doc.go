// Package gridnode 根据配置组装一个单节点网格：数据容器、持久化层、通知总线、
// 事务管理器、过期管理器与缓存，供 xgridctl 使用。
package gridnode
