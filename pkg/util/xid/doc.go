// Package xid 生成节点内单调递增、集群内唯一的 64 位 ID，用作缓存条目版本号。
//
// 基于 sonyflake：39 位时间（10ms）、8 位序号、16 位机器 ID。
// 机器 ID 默认按以下顺序获取：
//
//  1. 环境变量 XGRID_NODE_ID（0-65535）
//  2. 主机名的 xxhash 折叠值
//
// 多节点部署时建议显式设置 XGRID_NODE_ID，哈希值存在碰撞概率。
package xid
