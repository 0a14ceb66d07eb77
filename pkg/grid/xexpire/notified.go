package xexpire

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const notifiedCapacity = 1 << 14

// notifiedLog 记录已发出过期事件的 key 与事件时间，用于识别存储对同一条目的重复报告。
// 容量有界，最久未用的记录先被淘汰；key 上出现新的写时记录被清除。
type notifiedLog struct {
	entries *lru.Cache[string, time.Time]
}

func newNotifiedLog(size int) (*notifiedLog, error) {
	c, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &notifiedLog{entries: c}, nil
}

func (l *notifiedLog) record(key string, at time.Time) {
	l.entries.Add(key, at)
}

func (l *notifiedLog) forget(key string) {
	l.entries.Remove(key)
}

// covers 报告 created 时刻创建的条目是否已被 key 上记录的事件覆盖。
// created 为零值表示只知道 key。
func (l *notifiedLog) covers(key string, created time.Time) bool {
	at, ok := l.entries.Peek(key)
	return ok && (created.IsZero() || !created.After(at))
}
