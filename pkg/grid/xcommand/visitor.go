package xcommand

import (
	"context"
	"slices"
)

// Visitor 按命令类型分派处理。
type Visitor interface {
	VisitPut(ctx context.Context, c *PutCommand) (any, error)
	VisitRemove(ctx context.Context, c *RemoveCommand) (any, error)
	VisitReplace(ctx context.Context, c *ReplaceCommand) (any, error)
	VisitPutMap(ctx context.Context, c *PutMapCommand) (any, error)
	VisitRemoveExpired(ctx context.Context, c *RemoveExpiredCommand) (any, error)
	VisitClear(ctx context.Context, c *ClearCommand) (any, error)
	VisitPrepare(ctx context.Context, c *PrepareCommand) (any, error)
	VisitCommit(ctx context.Context, c *CommitCommand) (any, error)
	VisitRollback(ctx context.Context, c *RollbackCommand) (any, error)
}

// AffectedKeys 返回命令列表涉及的全部 key（去重、保持首次出现顺序）。
// Clear 与事务控制命令不涉及具体 key。
func AffectedKeys(ctx context.Context, cmds ...Command) []string {
	kc := &keyCollector{}
	for _, c := range cmds {
		_, _ = c.Accept(ctx, kc)
	}
	return kc.keys
}

type keyCollector struct {
	keys []string
}

func (k *keyCollector) add(key string) {
	if !slices.Contains(k.keys, key) {
		k.keys = append(k.keys, key)
	}
}

func (k *keyCollector) VisitPut(_ context.Context, c *PutCommand) (any, error) {
	k.add(c.Key)
	return nil, nil
}

func (k *keyCollector) VisitRemove(_ context.Context, c *RemoveCommand) (any, error) {
	k.add(c.Key)
	return nil, nil
}

func (k *keyCollector) VisitReplace(_ context.Context, c *ReplaceCommand) (any, error) {
	k.add(c.Key)
	return nil, nil
}

func (k *keyCollector) VisitPutMap(_ context.Context, c *PutMapCommand) (any, error) {
	for _, key := range sortedKeys(c.Entries) {
		k.add(key)
	}
	return nil, nil
}

func (k *keyCollector) VisitRemoveExpired(_ context.Context, c *RemoveExpiredCommand) (any, error) {
	k.add(c.Key)
	return nil, nil
}

func (k *keyCollector) VisitClear(context.Context, *ClearCommand) (any, error) { return nil, nil }

// VisitPrepare 递归收集嵌套修改。
func (k *keyCollector) VisitPrepare(ctx context.Context, c *PrepareCommand) (any, error) {
	for _, m := range c.Modifications {
		_, _ = m.Accept(ctx, k)
	}
	return nil, nil
}

func (k *keyCollector) VisitCommit(context.Context, *CommitCommand) (any, error) { return nil, nil }

func (k *keyCollector) VisitRollback(context.Context, *RollbackCommand) (any, error) {
	return nil, nil
}

// sortedKeys 返回 map 的有序 key，保证遍历顺序稳定。
func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Keys 返回 PutMapCommand 的有序 key 列表。
func (c *PutMapCommand) Keys() []string {
	return sortedKeys(c.Entries)
}
