package xentry

import "time"

const (
	// Immortal 表示条目不会因 lifespan 过期。
	Immortal time.Duration = -1

	// NoMaxIdle 表示条目不会因闲置过期。
	NoMaxIdle time.Duration = -1
)

// IsMortallyExpired 报告 lifespan 维度是否已过期。
// lifespan 为负（immortal）时永不过期。
func IsMortallyExpired(lifespan time.Duration, created, now time.Time) bool {
	return lifespan >= 0 && !now.Before(created.Add(lifespan))
}

// IsTransientlyExpired 报告 maxIdle 维度是否已过期。
// maxIdle 为负（disabled）时永不过期。
func IsTransientlyExpired(maxIdle time.Duration, lastUsed, now time.Time) bool {
	return maxIdle >= 0 && !now.Before(lastUsed.Add(maxIdle))
}

// Metadata 是条目的过期元数据。
type Metadata struct {
	Lifespan time.Duration
	MaxIdle  time.Duration
	Created  time.Time
	LastUsed time.Time
}

// NewMetadata 以 now 作为创建与最近访问时间构造元数据。
func NewMetadata(lifespan, maxIdle time.Duration, now time.Time) Metadata {
	return Metadata{
		Lifespan: lifespan,
		MaxIdle:  maxIdle,
		Created:  now,
		LastUsed: now,
	}
}

// ImmortalMetadata 返回永不过期的元数据。
func ImmortalMetadata(now time.Time) Metadata {
	return NewMetadata(Immortal, NoMaxIdle, now)
}

// IsMortal 报告 lifespan 是否生效。
func (m Metadata) IsMortal() bool { return m.Lifespan >= 0 }

// IsTransient 报告 maxIdle 是否生效。
func (m Metadata) IsTransient() bool { return m.MaxIdle >= 0 }

// CanExpire 报告条目是否可能过期。
func (m Metadata) CanExpire() bool { return m.IsMortal() || m.IsTransient() }

// IsMortallyExpired 见包级函数 [IsMortallyExpired]。
func (m Metadata) IsMortallyExpired(now time.Time) bool {
	return IsMortallyExpired(m.Lifespan, m.Created, now)
}

// IsTransientlyExpired 见包级函数 [IsTransientlyExpired]。
func (m Metadata) IsTransientlyExpired(now time.Time) bool {
	return IsTransientlyExpired(m.MaxIdle, m.LastUsed, now)
}

// IsExpired 报告任一维度是否已过期。
func (m Metadata) IsExpired(now time.Time) bool {
	return m.IsMortallyExpired(now) || m.IsTransientlyExpired(now)
}

// ExpiresAt 返回最早的过期时刻；不会过期时返回零值。
func (m Metadata) ExpiresAt() time.Time {
	var at time.Time
	if m.IsMortal() {
		at = m.Created.Add(m.Lifespan)
	}
	if m.IsTransient() {
		idle := m.LastUsed.Add(m.MaxIdle)
		if at.IsZero() || idle.Before(at) {
			at = idle
		}
	}
	return at
}

// Touch 返回推进 LastUsed 后的元数据，其余字段不变。
// now 早于当前 LastUsed 时保持不变，避免时钟回拨缩短闲置期。
func (m Metadata) Touch(now time.Time) Metadata {
	if now.After(m.LastUsed) {
		m.LastUsed = now
	}
	return m
}
