package xentry

import (
	"bytes"
	"time"
)

// Entry 是缓存条目的不可变快照。
// 安装到 Container 后不得再修改其字段，需要变更时构造新的 *Entry。
type Entry struct {
	Key      string
	Value    []byte
	Metadata Metadata
	Version  uint64
}

// NewEntry 构造条目。
func NewEntry(key string, value []byte, md Metadata) *Entry {
	return &Entry{Key: key, Value: value, Metadata: md}
}

// IsExpired 报告条目在 now 时刻是否过期。
func (e *Entry) IsExpired(now time.Time) bool {
	return e.Metadata.IsExpired(now)
}

// IsMortallyExpired 报告条目是否因 lifespan 过期。
func (e *Entry) IsMortallyExpired(now time.Time) bool {
	return e.Metadata.IsMortallyExpired(now)
}

// IsTransientlyExpired 报告条目是否因闲置过期。
func (e *Entry) IsTransientlyExpired(now time.Time) bool {
	return e.Metadata.IsTransientlyExpired(now)
}

// Touch 返回 LastUsed 推进到 now 的新快照，value 与版本不变。
func (e *Entry) Touch(now time.Time) *Entry {
	next := *e
	next.Metadata = e.Metadata.Touch(now)
	return &next
}

// SameValue 报告 value 是否与 v 相同。
func (e *Entry) SameValue(v []byte) bool {
	return bytes.Equal(e.Value, v)
}

// PrivateMetadata 是随事件传递的内部元数据。
type PrivateMetadata struct {
	Version uint64
}

// Source 标识过期被发现的位置。
type Source string

const (
	// SourceMemory 表示在内存数据容器中发现（扫描或读路径）。
	SourceMemory Source = "memory"
	// SourceStore 表示由持久化存储在自身清理时发现。
	SourceStore Source = "store"
)

// Event 是一次已确认移除的过期事件。
// Value/Metadata/PrivateMetadata 均可能缺失（如仅知道 key 的存储侧过期）。
type Event struct {
	Key             string
	Value           []byte
	Metadata        *Metadata
	PrivateMetadata *PrivateMetadata
	Source          Source
}

// EventFromEntry 由条目快照构造事件。
func EventFromEntry(e *Entry, src Source) Event {
	md := e.Metadata
	return Event{
		Key:             e.Key,
		Value:           e.Value,
		Metadata:        &md,
		PrivateMetadata: &PrivateMetadata{Version: e.Version},
		Source:          src,
	}
}
