package xcommand

import (
	"context"
	"time"
)

// Command 是可在拦截器链中传递的缓存命令。
type Command interface {
	// Accept 将命令分派给 v 的对应方法。
	Accept(ctx context.Context, v Visitor) (any, error)
	// Flags 返回命令标志。
	Flags() Flag
}

// Base 提供命令的公共字段，嵌入到各命令中。
type Base struct {
	Flag Flag
}

// Flags 返回命令标志。
func (b Base) Flags() Flag { return b.Flag }

// PutCommand 写入单个 key。
// Lifespan/MaxIdle 为负表示不过期（与 xentry.Immortal/NoMaxIdle 一致）。
type PutCommand struct {
	Base
	Key      string
	Value    []byte
	Lifespan time.Duration
	MaxIdle  time.Duration
}

func (c *PutCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitPut(ctx, c)
}

// RemoveCommand 删除单个 key。
type RemoveCommand struct {
	Base
	Key string
}

func (c *RemoveCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitRemove(ctx, c)
}

// ReplaceCommand 在 key 存在（且 Expected 非 nil 时 value 相等）时替换。
type ReplaceCommand struct {
	Base
	Key      string
	Expected []byte
	Value    []byte
	Lifespan time.Duration
	MaxIdle  time.Duration
}

func (c *ReplaceCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitReplace(ctx, c)
}

// PutMapCommand 批量写入多个 key，共享同一组过期参数。
type PutMapCommand struct {
	Base
	Entries  map[string][]byte
	Lifespan time.Duration
	MaxIdle  time.Duration
}

func (c *PutMapCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitPutMap(ctx, c)
}

// RemoveExpiredCommand 是过期移除的条件删除。
// Value 为 nil 时无条件删除当前值；否则仅在 value 与 lifespan 都匹配时删除。
type RemoveExpiredCommand struct {
	Base
	Key      string
	Value    []byte
	Lifespan time.Duration
}

func (c *RemoveExpiredCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitRemoveExpired(ctx, c)
}

// ClearCommand 清空缓存。
type ClearCommand struct {
	Base
}

func (c *ClearCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitClear(ctx, c)
}

// PrepareCommand 是事务两阶段提交的第一阶段，携带事务内全部修改。
type PrepareCommand struct {
	Base
	TxID          string
	Modifications []Command
	// OnePhase 为 true 时 prepare 成功即提交。
	OnePhase bool
}

func (c *PrepareCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitPrepare(ctx, c)
}

// CommitCommand 提交已 prepare 的事务。
type CommitCommand struct {
	Base
	TxID string
}

func (c *CommitCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitCommit(ctx, c)
}

// RollbackCommand 回滚事务。
type RollbackCommand struct {
	Base
	TxID string
}

func (c *RollbackCommand) Accept(ctx context.Context, v Visitor) (any, error) {
	return v.VisitRollback(ctx, c)
}
