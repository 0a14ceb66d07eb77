package xcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xexpire"
	"github.com/omeyang/xgrid/pkg/grid/xtx"
)

func TestCache_ClusteredReadGoesThroughWritePath(t *testing.T) {
	h := newHarness(t, harnessOptions{exp: clusteredExpiration()})
	ctx := context.Background()

	_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(100*time.Millisecond))
	require.NoError(t, err)
	h.clock.Advance(100 * time.Millisecond)

	_, ok, err := h.cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	events := h.Events()
	require.Len(t, events, 1, "sync read removal completes before Get returns")
	assert.Equal(t, xentry.SourceMemory, events[0].Source)
	assert.Equal(t, uint64(1), h.exp.Stats().ClusterRemovals)
	assert.Zero(t, h.cache.Len())
	assert.False(t, h.storeHas("k"))
	assert.False(t, h.exp.IsGuarded("k"))
}

func TestCache_ClusteredReaperRemovesThroughCache(t *testing.T) {
	h := newHarness(t, harnessOptions{exp: clusteredExpiration()})
	ctx := context.Background()

	_, err := h.cache.Put(ctx, "mortal", []byte("v"), WithLifespan(time.Second))
	require.NoError(t, err)
	_, err = h.cache.Put(ctx, "idle", []byte("v"), WithMaxIdle(time.Second))
	require.NoError(t, err)
	h.clock.Advance(2 * time.Second)

	require.NoError(t, h.exp.ProcessExpiration(ctx))

	assert.Zero(t, h.cache.Len())
	assert.Equal(t, uint64(1), h.exp.Stats().ClusterRemovals, "idle expiry stays local")
	keys := map[string]bool{}
	for _, ev := range h.Events() {
		keys[ev.Key] = true
	}
	assert.Equal(t, map[string]bool{"mortal": true, "idle": true}, keys)
}

func TestCache_ClusteredPurgeOfStoreOnlyRow(t *testing.T) {
	h := newHarness(t, harnessOptions{exp: clusteredExpiration()})
	ctx := context.Background()
	md := xentry.NewMetadata(time.Second, xentry.NoMaxIdle, t0)

	h.writeRow(t, "k", "v", md)
	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.exp.ProcessExpiration(ctx))

	require.Eventually(t, func() bool { return len(h.Events()) == 1 }, time.Second, time.Millisecond)
	ev := h.Events()[0]
	assert.Equal(t, "k", ev.Key)
	assert.Equal(t, xentry.SourceStore, ev.Source)
	assert.Equal(t, []byte("v"), ev.Value)
	assert.False(t, h.storeHas("k"))
	assert.Eventually(t, func() bool { return h.exp.Stats().ClusterRemovals == 1 }, time.Second, time.Millisecond)

	// 同一行的重复报告与只给 key 的移除都不会再次通知
	h.exp.HandleStoreExpirationEntry(ctx, "k", []byte("v"), md)
	removed, err := h.cache.RemoveExpired(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Len(t, h.Events(), 1)
}

func TestCache_ZeroLockTimeoutFailsWhilePrepared(t *testing.T) {
	h := newHarness(t, harnessOptions{exp: clusteredExpiration()})
	ctx := context.Background()

	_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(time.Millisecond))
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)

	handle := h.cache.Handler()
	_, err = handle(ctx, &xcommand.PrepareCommand{
		TxID:          "t1",
		Modifications: []xcommand.Command{&xcommand.PutCommand{Key: "k", Value: []byte("tx"), Lifespan: xentry.Immortal, MaxIdle: xentry.NoMaxIdle}},
	})
	require.NoError(t, err)
	assert.False(t, h.exp.IsWriteSuppressed("k"), "suppression ends with the prepare command")

	_, err = h.cache.View(xcommand.FlagZeroLockTimeout).RemoveExpired(ctx, "k", []byte("v"), time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	removed, err := h.cache.View(xcommand.FlagSkipLocking).RemoveExpired(ctx, "other", nil, 0)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = handle(ctx, &xcommand.CommitCommand{TxID: "t1"})
	require.NoError(t, err)
	v, ok, err := h.cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("tx"), v)

	_, err = handle(ctx, &xcommand.CommitCommand{TxID: "t1"})
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}

func TestCache_TransactionCommitAndRollback(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	txCtx, tx, err := h.txm.Begin(ctx)
	require.NoError(t, err)
	_, err = h.cache.Put(txCtx, "a", []byte("1"))
	require.NoError(t, err)
	require.NoError(t, h.cache.PutAll(txCtx, map[string][]byte{"b": []byte("2"), "c": []byte("3")}))
	assert.Zero(t, h.cache.Len(), "enlisted writes are not applied before commit")

	require.NoError(t, h.txm.Commit(txCtx, tx))
	assert.Equal(t, 3, h.cache.Len())
	assert.Equal(t, 3, h.store.Len())

	txCtx, tx, err = h.txm.Begin(ctx)
	require.NoError(t, err)
	_, err = h.cache.Remove(txCtx, "a")
	require.NoError(t, err)
	require.NoError(t, h.txm.Rollback(txCtx, tx))
	assert.Equal(t, 3, h.cache.Len())
	assert.Zero(t, h.txm.ActiveCount())
}

func TestCache_RollbackReleasesPreparedLocks(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	handle := h.cache.Handler()

	_, err := handle(ctx, &xcommand.PrepareCommand{
		TxID:          "t1",
		Modifications: []xcommand.Command{&xcommand.RemoveCommand{Key: "k"}},
	})
	require.NoError(t, err)
	_, err = handle(ctx, &xcommand.RollbackCommand{TxID: "t1"})
	require.NoError(t, err)

	// 锁已释放，零等待的写可以立即获取
	_, err = h.cache.View(xcommand.FlagZeroLockTimeout).Put(ctx, "k", []byte("v"))
	require.NoError(t, err)
}

func txExpiration(locking xexpire.Locking) xexpire.Config {
	cfg := clusteredExpiration()
	cfg.Transactional = true
	cfg.Locking = locking
	return cfg
}

func TestCache_TransactionalRemovalRunsInOwnTransaction(t *testing.T) {
	for _, locking := range []xexpire.Locking{xexpire.LockingOptimistic, xexpire.LockingPessimistic} {
		t.Run(string(locking), func(t *testing.T) {
			h := newHarness(t, harnessOptions{exp: txExpiration(locking)})
			ctx := context.Background()

			_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(time.Second))
			require.NoError(t, err)
			h.clock.Advance(time.Second)

			require.NoError(t, h.exp.ProcessExpiration(ctx))
			assert.Zero(t, h.cache.Len())
			require.Len(t, h.Events(), 1)
			assert.Zero(t, h.txm.ActiveCount())
		})
	}
}

func TestCache_OptimisticReadFailsFastOnPreparedKey(t *testing.T) {
	h := newHarness(t, harnessOptions{exp: txExpiration(xexpire.LockingOptimistic)})
	ctx := context.Background()

	_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(time.Millisecond))
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)

	handle := h.cache.Handler()
	_, err = handle(ctx, &xcommand.PrepareCommand{
		TxID:          "holder",
		Modifications: []xcommand.Command{&xcommand.PutCommand{Key: "k", Value: []byte("tx"), Lifespan: xentry.Immortal, MaxIdle: xentry.NoMaxIdle}},
	})
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		_, ok, err := h.cache.Get(ctx, "k")
		assert.NoError(t, err)
		done <- ok
	}()
	select {
	case ok := <-done:
		assert.False(t, ok, "expired entry reads as a miss")
	case <-time.After(2 * time.Second):
		_, _ = handle(ctx, &xcommand.CommitCommand{TxID: "holder"})
		<-done
		t.Fatal("read queued behind the prepared transaction's lock")
	}

	assert.Empty(t, h.Events(), "removal gave up on the held lock")
	assert.Equal(t, 1, h.cache.Len())
	assert.False(t, h.exp.IsGuarded("k"))
	assert.Zero(t, h.txm.ActiveCount())
	assert.Equal(t, uint64(1), h.exp.Stats().Failures)

	_, err = handle(ctx, &xcommand.CommitCommand{TxID: "holder"})
	require.NoError(t, err)
	v, ok, err := h.cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("tx"), v)
}

func TestCache_UserTransactionSurvivesReadRemoval(t *testing.T) {
	h := newHarness(t, harnessOptions{exp: txExpiration(xexpire.LockingOptimistic)})
	ctx := context.Background()

	_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(time.Second))
	require.NoError(t, err)
	h.clock.Advance(time.Second)

	txCtx, tx, err := h.txm.Begin(ctx)
	require.NoError(t, err)
	_, ok, err := h.cache.Get(txCtx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, h.Events(), 1, "optimistic reads wait for the removal")

	assert.Same(t, tx, xtx.FromContext(txCtx))
	assert.Equal(t, xtx.StatusActive, tx.Status(), "caller transaction is resumed untouched")
	_, err = h.cache.Put(txCtx, "k", []byte("again"))
	require.NoError(t, err)
	require.NoError(t, h.txm.Commit(txCtx, tx))

	v, ok, err := h.cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("again"), v)
}
