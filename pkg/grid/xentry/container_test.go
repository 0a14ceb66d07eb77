package xentry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContainer(t *testing.T, cfg ContainerConfig, opts ...ContainerOption) *Container {
	t.Helper()
	c, err := NewContainer(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(ContainerConfig{Segments: -1})
	assert.ErrorIs(t, err, ErrInvalidSegments)

	_, err = NewContainer(ContainerConfig{Segments: 8, MaxEntries: 4})
	assert.ErrorIs(t, err, ErrInvalidMaxEntries)

	c, err := NewContainer(ContainerConfig{})
	require.NoError(t, err)
	assert.Equal(t, defaultSegments, c.Segments())
}

func TestContainer_PutPeekRemove(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t, ContainerConfig{Segments: 4, MaxEntries: 64})

	e := NewEntry("k1", []byte("v1"), ImmortalMetadata(t0))
	prev, err := c.Put(ctx, e)
	require.NoError(t, err)
	assert.Nil(t, prev)

	assert.Same(t, e, c.Peek(c.Segment("k1"), "k1"))
	assert.Nil(t, c.Peek(c.Segment("k1")+100, "k1"), "out of range segment")
	assert.Same(t, e, c.Get("k1"))

	removed, err := c.Remove(ctx, "k1")
	require.NoError(t, err)
	assert.Same(t, e, removed)
	assert.Nil(t, c.Get("k1"))
	assert.Equal(t, 0, c.Len())
}

func TestContainer_ComputeSemantics(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t, ContainerConfig{Segments: 2, MaxEntries: 16})
	e := NewEntry("k", []byte("v"), ImmortalMetadata(t0))
	_, err := c.Put(ctx, e)
	require.NoError(t, err)

	// 返回 cur：不变
	got, err := c.Compute(ctx, "k", func(cur *Entry) (*Entry, error) { return cur, nil })
	require.NoError(t, err)
	assert.Same(t, e, got)

	// 返回错误：不变
	boom := errors.New("boom")
	_, err = c.Compute(ctx, "k", func(*Entry) (*Entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Same(t, e, c.Get("k"))

	// key 不一致：拒绝
	_, err = c.Compute(ctx, "k", func(*Entry) (*Entry, error) {
		return NewEntry("other", nil, ImmortalMetadata(t0)), nil
	})
	assert.ErrorIs(t, err, ErrKeyMismatch)

	// 返回 nil：删除
	_, err = c.Compute(ctx, "k", func(*Entry) (*Entry, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, c.Get("k"))
}

func TestContainer_ComputeIsAtomicPerKey(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t, ContainerConfig{Segments: 4, MaxEntries: 64})
	_, err := c.Put(ctx, NewEntry("counter", []byte{0}, ImmortalMetadata(t0)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			_, err := c.Compute(ctx, "counter", func(cur *Entry) (*Entry, error) {
				next := *cur
				next.Value = []byte{cur.Value[0] + 1}
				return &next, nil
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, byte(50), c.Get("counter").Value[0])
}

func TestContainer_IterateIncludingExpired(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t, ContainerConfig{Segments: 4, MaxEntries: 64})
	for i := range 10 {
		md := NewMetadata(time.Duration(i)*time.Millisecond, NoMaxIdle, t0)
		_, err := c.Put(ctx, NewEntry(fmt.Sprintf("k%d", i), nil, md))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for e, err := range c.IterateIncludingExpired(ctx) {
		require.NoError(t, err)
		seen[e.Key] = true
	}
	assert.Len(t, seen, 10, "expired entries must be included")
}

func TestContainer_IterateStopsOnCancel(t *testing.T) {
	c := newContainer(t, ContainerConfig{Segments: 1, MaxEntries: 16})
	for i := range 5 {
		_, err := c.Put(context.Background(), NewEntry(fmt.Sprintf("k%d", i), nil, ImmortalMetadata(t0)))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	n := 0
	for e, err := range c.IterateIncludingExpired(ctx) {
		if err != nil {
			gotErr = err
			break
		}
		_ = e
		n++
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
	assert.Zero(t, n)
}

func TestContainer_EvictionListener(t *testing.T) {
	var evicted []string
	c := newContainer(t, ContainerConfig{Segments: 1, MaxEntries: 2},
		WithEvictionListener(func(e *Entry) { evicted = append(evicted, e.Key) }))

	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Put(ctx, NewEntry(k, nil, ImmortalMetadata(t0)))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 2, c.Len())
}

func TestContainer_ExplicitRemovalDoesNotNotifyEviction(t *testing.T) {
	var evicted []string
	c := newContainer(t, ContainerConfig{Segments: 1, MaxEntries: 4},
		WithEvictionListener(func(e *Entry) { evicted = append(evicted, e.Key) }))

	ctx := context.Background()
	_, err := c.Put(ctx, NewEntry("a", nil, ImmortalMetadata(t0)))
	require.NoError(t, err)
	_, err = c.Put(ctx, NewEntry("b", nil, ImmortalMetadata(t0)))
	require.NoError(t, err)

	_, err = c.Remove(ctx, "a")
	require.NoError(t, err)
	c.Clear()

	assert.Empty(t, evicted)
	assert.Zero(t, c.Len())
}
