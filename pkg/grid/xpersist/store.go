package xpersist

import (
	"context"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

// Row 是存储中的一行。
type Row struct {
	Key      string
	Value    []byte
	Metadata xentry.Metadata
}

// PurgedRow 是存储清理时发现的过期行。
// Metadata 为 nil 表示存储只知道 key（此时 Value 也为 nil）。
type PurgedRow struct {
	Key      string
	Value    []byte
	Metadata *xentry.Metadata
}

// Characteristics 描述存储的能力。
type Characteristics struct {
	// Shared 表示存储由集群内所有节点共享。
	Shared bool
	// ReadOnly 表示存储不接受写入与删除。
	ReadOnly bool
}

// Store 是一个持久化存储。实现必须是并发安全的。
type Store interface {
	// Name 返回存储名称，在同一个 Manager 内唯一。
	Name() string
	// Characteristics 返回存储能力。
	Characteristics() Characteristics
	// Load 读取一行，不存在时返回 (nil, nil)。
	Load(ctx context.Context, key string) (*Row, error)
	// Write 写入一行。
	Write(ctx context.Context, row Row) error
	// Delete 删除一行，返回是否真正删除了数据。
	Delete(ctx context.Context, key string) (bool, error)
	// PurgeExpired 删除在 now 时刻已过期的行，每删除一行回调一次 fn。
	PurgeExpired(ctx context.Context, now time.Time, fn func(PurgedRow)) error
	// Clear 删除全部行。
	Clear(ctx context.Context) error
}

// PurgeListener 接收存储清理发现的过期行。
type PurgeListener interface {
	// HandleStoreExpiration 处理只知道 key 的过期行。
	HandleStoreExpiration(ctx context.Context, key string)
	// HandleStoreExpirationEntry 处理带有 value 与元数据的过期行。
	HandleStoreExpirationEntry(ctx context.Context, key string, value []byte, md xentry.Metadata)
}

// AccessMode 选择操作作用于哪些存储。
type AccessMode int

const (
	// ModeBoth 作用于共享与私有存储。
	ModeBoth AccessMode = iota
	// ModeShared 只作用于共享存储。
	ModeShared
	// ModePrivate 只作用于私有存储。
	ModePrivate
)

// Matches 报告该模式是否包含具有 c 特征的存储。
func (m AccessMode) Matches(c Characteristics) bool {
	switch m {
	case ModeShared:
		return c.Shared
	case ModePrivate:
		return !c.Shared
	default:
		return true
	}
}

func (m AccessMode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModePrivate:
		return "private"
	default:
		return "both"
	}
}
