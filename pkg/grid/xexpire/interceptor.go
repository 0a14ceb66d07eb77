package xexpire

import (
	"context"
	"slices"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
)

// Interceptor 返回写抑制拦截器。
//
// 单 key 写（put/remove/replace）登记该 key，PutMap 登记所有 key，
// Prepare 登记其修改涉及的 key。命令结束（包括失败）后注销。
// Commit、Rollback、Clear 与 RemoveExpired 直接放行。
func (m *Manager) Interceptor() xcommand.Interceptor {
	return suppressionInterceptor{m: m}
}

type suppressionInterceptor struct {
	m *Manager
}

func (i suppressionInterceptor) Intercept(ctx context.Context, cmd xcommand.Command, next xcommand.Handler) (any, error) {
	keys := writeKeys(ctx, cmd)
	for _, k := range keys {
		i.m.RegisterWriteIncoming(k)
	}
	defer func() {
		for _, k := range keys {
			i.m.UnregisterWrite(k)
		}
	}()
	return next(ctx, cmd)
}

func writeKeys(ctx context.Context, cmd xcommand.Command) []string {
	switch c := cmd.(type) {
	case *xcommand.PutCommand:
		return []string{c.Key}
	case *xcommand.RemoveCommand:
		return []string{c.Key}
	case *xcommand.ReplaceCommand:
		return []string{c.Key}
	case *xcommand.PutMapCommand:
		return c.Keys()
	case *xcommand.PrepareCommand:
		// 事务内的过期移除不是用户写
		mods := slices.DeleteFunc(slices.Clone(c.Modifications), func(mod xcommand.Command) bool {
			_, ok := mod.(*xcommand.RemoveExpiredCommand)
			return ok
		})
		return xcommand.AffectedKeys(ctx, mods...)
	default:
		return nil
	}
}
