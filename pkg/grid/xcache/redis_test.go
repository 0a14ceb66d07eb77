package xcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
)

func newRedisHarness(t *testing.T, o harnessOptions) (*harness, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rs, err := xpersist.NewRedisStore("redis", client, xpersist.WithRedisShared(true),
		xpersist.WithRedisLogger(discard))
	require.NoError(t, err)
	o.stores = []xpersist.Store{rs}
	return newHarness(t, o), mr
}

func TestCache_RedisStoreLifecycle(t *testing.T) {
	h, mr := newRedisHarness(t, harnessOptions{})
	ctx := context.Background()

	_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(time.Second))
	require.NoError(t, err)
	assert.True(t, mr.Exists("xgrid:row:k"))

	// 内存丢失后从 Redis 读回
	h.container.Clear()
	v, ok, err := h.cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	h.clock.Advance(time.Second)
	require.NoError(t, h.exp.ProcessExpiration(ctx))

	assert.False(t, mr.Exists("xgrid:row:k"))
	events := h.Events()
	require.Len(t, events, 1)
	assert.Equal(t, xentry.SourceMemory, events[0].Source)
}

func TestCache_RedisPurgeOfStoreOnlyRow(t *testing.T) {
	h, mr := newRedisHarness(t, harnessOptions{})
	ctx := context.Background()

	// 写入后清空内存，过期只能由存储清理发现
	_, err := h.cache.Put(ctx, "k", []byte("v"), WithLifespan(time.Second))
	require.NoError(t, err)
	h.container.Clear()
	h.clock.Advance(2 * time.Second)

	require.NoError(t, h.exp.ProcessExpiration(ctx))

	assert.False(t, mr.Exists("xgrid:row:k"))
	events := h.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "k", events[0].Key)
	assert.Equal(t, xentry.SourceStore, events[0].Source)
}
