package xexpire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

func TestCluster_ScanRemovesThroughCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	f.put(t, "k1", "v1", 100*time.Millisecond, xentry.NoMaxIdle)
	f.clock.Advance(150 * time.Millisecond)

	cache.EXPECT().
		RemoveExpired(gomock.Any(), "k1", []byte("v1"), 100*time.Millisecond).
		Return(true, nil)

	require.NoError(t, f.m.ProcessExpiration(context.Background()))

	assert.NotNil(t, f.container.Get("k1"), "coordinator must not touch the entry store")
	assert.Empty(t, f.notifier.Events(), "the cache write path emits the event")
	assert.Equal(t, uint64(1), f.m.Stats().ClusterRemovals)
	assert.False(t, f.m.IsGuarded("k1"))
}

func TestCluster_TransientExpirationStaysLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl) // 不允许任何调用
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	f.put(t, "idle", "v", xentry.Immortal, 10*time.Millisecond)
	f.clock.Advance(time.Second)

	require.NoError(t, f.m.ProcessExpiration(context.Background()))
	assert.Nil(t, f.container.Get("idle"))
	assert.Len(t, f.notifier.Events(), 1)
}

func TestCluster_RefreshedEntryIsNotRemoved(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	f.put(t, "k", "v", 10*time.Millisecond, xentry.NoMaxIdle)
	f.clock.Advance(time.Second)
	f.put(t, "k", "v2", time.Hour, xentry.NoMaxIdle)

	f.m.expireClustered(context.Background(), "k", true, nil)
	assert.Equal(t, uint64(1), f.m.Stats().Skipped)
}

func TestCluster_ReadPathUsesConfiguredFlags(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	flagged := NewMockCache(ctrl)
	cfg := clusteredConfig()
	cfg.ReadLocking = ReadLockingSkip
	f := newFixture(t, cfg, Dependencies{Cache: cache})
	e := f.put(t, "k", "v", 10*time.Millisecond, xentry.NoMaxIdle)
	f.clock.Advance(time.Second)

	called := make(chan struct{})
	cache.EXPECT().WithFlags(xcommand.FlagSkipLocking).Return(flagged)
	flagged.EXPECT().
		RemoveExpired(gomock.Any(), "k", []byte("v"), 10*time.Millisecond).
		DoAndReturn(func(context.Context, string, []byte, time.Duration) (bool, error) {
			close(called)
			return true, nil
		})

	// 非事务读默认不等待
	assert.True(t, f.m.HandlePossibleExpiration(context.Background(), e, -1, false))
	<-called
	assert.Eventually(t, func() bool { return !f.m.IsGuarded("k") }, time.Second, time.Millisecond)
}

func TestCluster_WritePathWaitsWithoutFlags(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	e := f.put(t, "k", "v", 10*time.Millisecond, xentry.NoMaxIdle)
	f.clock.Advance(time.Second)

	cache.EXPECT().RemoveExpired(gomock.Any(), "k", []byte("v"), 10*time.Millisecond).Return(true, nil)

	assert.True(t, f.m.HandlePossibleExpiration(context.Background(), e, -1, true))
	assert.False(t, f.m.IsGuarded("k"), "synchronous removal has finished")
}

func TestTriggerLifespanRemoval_GuardedKeyIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})

	require.True(t, f.m.guard.TryAdd("k"))
	require.NoError(t, f.m.TriggerLifespanRemoval(context.Background(), "k", []byte("v"), time.Second, true))
	assert.True(t, f.m.IsGuarded("k"), "guard owned by the first caller")
}

func TestTriggerLifespanRemoval_ErrorReleasesGuard(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})

	boom := errors.New("boom")
	cache.EXPECT().RemoveExpired(gomock.Any(), "k", gomock.Nil(), time.Second).Return(false, boom)

	err := f.m.TriggerLifespanRemoval(context.Background(), "k", nil, time.Second, true)
	require.ErrorIs(t, err, boom)
	assert.False(t, f.m.IsGuarded("k"))
	assert.Equal(t, uint64(1), f.m.Stats().Failures)
}

func TestCluster_StoreExpirationRoutesThroughCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	f.put(t, "k", "v", 10*time.Millisecond, xentry.NoMaxIdle)
	f.clock.Advance(time.Second)

	called := make(chan struct{})
	cache.EXPECT().
		RemoveExpired(gomock.Any(), "k", gomock.Nil(), 10*time.Millisecond).
		DoAndReturn(func(context.Context, string, []byte, time.Duration) (bool, error) {
			close(called)
			return true, nil
		})

	f.m.HandleStoreExpiration(context.Background(), "k")
	<-called
	assert.Eventually(t, func() bool { return !f.m.IsGuarded("k") }, time.Second, time.Millisecond)
	assert.Empty(t, f.store.Deletes())
}

func TestCluster_StoreExpirationOfAbsentKeyRoutesThroughCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	purged := NewMockCache(ctrl)
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	md := xentry.NewMetadata(10*time.Millisecond, xentry.NoMaxIdle, t0)
	f.clock.Advance(time.Second)

	calls := make(chan string, 2)
	cache.EXPECT().WithFlags(xcommand.FlagPurgedFromStore).Return(purged).Times(2)
	purged.EXPECT().
		RemoveExpired(gomock.Any(), "absent", gomock.Nil(), time.Duration(0)).
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ time.Duration) (bool, error) {
			calls <- key
			return true, nil
		})
	purged.EXPECT().
		RemoveExpired(gomock.Any(), "row", []byte("v"), 10*time.Millisecond).
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ time.Duration) (bool, error) {
			calls <- key
			return true, nil
		})

	f.m.HandleStoreExpiration(context.Background(), "absent")
	assert.Equal(t, "absent", <-calls)
	f.m.HandleStoreExpirationEntry(context.Background(), "row", []byte("v"), md)
	assert.Equal(t, "row", <-calls)

	assert.Eventually(t, func() bool {
		return !f.m.IsGuarded("absent") && !f.m.IsGuarded("row")
	}, time.Second, time.Millisecond)
	assert.Empty(t, f.store.Deletes(), "store copies are removed by the cache write path")
	assert.Empty(t, f.notifier.Events())
}

func TestCluster_StoreExpirationOfNotifiedKeyIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl) // 不允许任何调用
	f := newFixture(t, clusteredConfig(), Dependencies{Cache: cache})
	ctx := context.Background()

	require.NoError(t, f.m.NotifyExpired(ctx, xentry.Event{Key: "k", Source: xentry.SourceMemory}))
	f.m.HandleStoreExpiration(ctx, "k")
	assert.Equal(t, uint64(1), f.m.Stats().Skipped)
	assert.Empty(t, f.store.Deletes())
}

func TestCluster_StartRequiresCache(t *testing.T) {
	f := newFixture(t, clusteredConfig(), Dependencies{})
	require.ErrorIs(t, f.m.Start(context.Background()), ErrNilCache)

	ctrl := gomock.NewController(t)
	f.m.BindCache(NewMockCache(ctrl))
	require.NoError(t, f.m.Start(context.Background()))
}
