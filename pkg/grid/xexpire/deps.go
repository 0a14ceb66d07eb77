package xexpire

import (
	"context"
	"iter"
	"time"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/grid/xtx"
)

// DataContainer 是内存数据容器。
type DataContainer interface {
	Segment(key string) int
	Peek(segment int, key string) *xentry.Entry
	Compute(ctx context.Context, key string, fn xentry.ComputeFunc) (*xentry.Entry, error)
	IterateIncludingExpired(ctx context.Context) iter.Seq2[*xentry.Entry, error]
}

// Persistence 是持久化层。
type Persistence interface {
	PurgeExpired(ctx context.Context, l xpersist.PurgeListener) error
	DeleteFromAllStores(ctx context.Context, key string, segment int, mode xpersist.AccessMode) (bool, error)
	DeleteFromAllStoresAsync(ctx context.Context, key string, segment int, mode xpersist.AccessMode) <-chan xpersist.DeleteResult
	HasWriter() bool
}

// Notifier 是过期事件通知总线。
type Notifier interface {
	NotifyExpired(ctx context.Context, ev xentry.Event) error
}

//go:generate mockgen -destination=mock_cache_test.go -package=xexpire . Cache

// Cache 是集群模式下用于移除过期条目的缓存写路径。
type Cache interface {
	// RemoveExpired 在 key 的当前 value 与 lifespan 与期望一致时删除它。
	// value 为 nil 时只按 key 判定（仍要求已过期）。返回是否删除。
	RemoveExpired(ctx context.Context, key string, value []byte, lifespan time.Duration) (bool, error)
	// WithFlags 返回附带命令标志的缓存视图。
	WithFlags(flags ...xcommand.Flag) Cache
}

// TxManager 是事务管理器。
type TxManager interface {
	Begin(ctx context.Context) (context.Context, *xtx.Transaction, error)
	Commit(ctx context.Context, tx *xtx.Transaction) error
	Rollback(ctx context.Context, tx *xtx.Transaction) error
	Suspend(ctx context.Context) (context.Context, *xtx.Transaction)
	Resume(ctx context.Context, tx *xtx.Transaction) (context.Context, error)
}

// Dependencies 是 Manager 的协作者。
type Dependencies struct {
	Container   DataContainer
	Persistence Persistence
	Notifier    Notifier
	// Cache 集群模式必需，也可以在构造后通过 [Manager.BindCache] 提供。
	Cache Cache
	// TxManager 事务模式必需。
	TxManager TxManager
}
