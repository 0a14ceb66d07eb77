package xtx

import "context"

type txKey struct{}

// WithTransaction 将 tx 写入 ctx；tx 为 nil 时写入空值，用于屏蔽外层事务。
func WithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext 返回 ctx 中的事务，不存在时返回 nil。
func FromContext(ctx context.Context) *Transaction {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{}).(*Transaction)
	return tx
}
