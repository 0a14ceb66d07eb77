package xcache

import (
	"context"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
)

// observeInterceptor 为每个命令记录一个 span。
type observeInterceptor struct {
	c *core
}

func (o observeInterceptor) Intercept(ctx context.Context, cmd xcommand.Command, next xcommand.Handler) (res any, err error) {
	ctx, span := xmetrics.Start(ctx, o.c.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: operationName(cmd),
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("flags", cmd.Flags().String())},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()
	return next(ctx, cmd)
}

func operationName(cmd xcommand.Command) string {
	switch cmd.(type) {
	case *xcommand.PutCommand:
		return "put"
	case *xcommand.PutMapCommand:
		return "put_map"
	case *xcommand.ReplaceCommand:
		return "replace"
	case *xcommand.RemoveCommand:
		return "remove"
	case *xcommand.RemoveExpiredCommand:
		return "remove_expired"
	case *xcommand.ClearCommand:
		return "clear"
	case *xcommand.PrepareCommand:
		return "prepare"
	case *xcommand.CommitCommand:
		return "commit"
	case *xcommand.RollbackCommand:
		return "rollback"
	default:
		return "unknown"
	}
}
