package xpersist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("mem", WithShared(true))
	assert.Equal(t, "mem", s.Name())
	assert.True(t, s.Characteristics().Shared)

	row, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, row)

	v := []byte("v")
	require.NoError(t, s.Write(ctx, Row{Key: "k", Value: v, Metadata: xentry.ImmortalMetadata(t0)}))
	v[0] = 'x'

	row, err = s.Load(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []byte("v"), row.Value, "store must own a copy")

	ok, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_PurgeExpiredGivesFullRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("mem")
	require.NoError(t, s.Write(ctx, Row{Key: "dead", Value: []byte("1"), Metadata: xentry.NewMetadata(time.Second, xentry.NoMaxIdle, t0)}))
	require.NoError(t, s.Write(ctx, Row{Key: "alive", Value: []byte("2"), Metadata: xentry.NewMetadata(time.Hour, xentry.NoMaxIdle, t0)}))

	var purged []PurgedRow
	require.NoError(t, s.PurgeExpired(ctx, t0.Add(2*time.Second), func(r PurgedRow) { purged = append(purged, r) }))

	require.Len(t, purged, 1)
	assert.Equal(t, "dead", purged[0].Key)
	assert.Equal(t, []byte("1"), purged[0].Value)
	require.NotNil(t, purged[0].Metadata)
	assert.Equal(t, time.Second, purged[0].Metadata.Lifespan)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("mem")
	require.NoError(t, s.Write(ctx, Row{Key: "a", Metadata: xentry.ImmortalMetadata(t0)}))
	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Len())
}

func TestAccessMode_Matches(t *testing.T) {
	shared := Characteristics{Shared: true}
	private := Characteristics{}
	assert.True(t, ModeBoth.Matches(shared))
	assert.True(t, ModeBoth.Matches(private))
	assert.True(t, ModeShared.Matches(shared))
	assert.False(t, ModeShared.Matches(private))
	assert.False(t, ModePrivate.Matches(shared))
	assert.True(t, ModePrivate.Matches(private))
	assert.Equal(t, "shared", ModeShared.String())
}
