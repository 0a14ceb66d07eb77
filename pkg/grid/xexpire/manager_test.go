package xexpire

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

func TestNew_Validation(t *testing.T) {
	c, err := xentry.NewContainer(xentry.ContainerConfig{Segments: 1, MaxEntries: 8})
	require.NoError(t, err)
	p, n := &fakePersistence{}, &recordingNotifier{}

	_, err = New(localConfig(), Dependencies{Persistence: p, Notifier: n})
	assert.ErrorIs(t, err, ErrNilContainer)
	_, err = New(localConfig(), Dependencies{Container: c, Notifier: n})
	assert.ErrorIs(t, err, ErrNilPersistence)
	_, err = New(localConfig(), Dependencies{Container: c, Persistence: p})
	assert.ErrorIs(t, err, ErrNilNotifier)
	_, err = New(txConfig(LockingOptimistic), Dependencies{Container: c, Persistence: p, Notifier: n})
	assert.ErrorIs(t, err, ErrNilTxManager)

	bad := localConfig()
	bad.Mode = "mesh"
	_, err = New(bad, Dependencies{Container: c, Persistence: p, Notifier: n})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{}.Validate(), "zero value uses defaults")
	assert.NoError(t, Config{WakeUpInterval: -time.Millisecond}.Validate(), "non-positive disables the reaper")

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"locking", func(c *Config) { c.Locking = "none" }},
		{"read removal", func(c *Config) { c.ReadRemoval = "later" }},
		{"read locking", func(c *Config) { c.ReadLocking = "maybe" }},
		{"local tx", func(c *Config) { c.Transactional = true }},
		{"workers", func(c *Config) { c.Workers = -1 }},
		{"sub-second interval", func(c *Config) { c.WakeUpInterval = 500 * time.Millisecond }},
		{"fractional interval", func(c *Config) { c.WakeUpInterval = 1500 * time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestPolicy(t *testing.T) {
	skip := []xcommand.Flag{xcommand.FlagSkipLocking}
	zero := []xcommand.Flag{xcommand.FlagZeroLockTimeout}

	tests := []struct {
		name      string
		cfg       Config
		kind      PolicyKind
		readWait  bool
		readFlags []xcommand.Flag
	}{
		{"local default", localConfig(), PolicyLocal, false, nil},
		{"local sync reads", func() Config { c := localConfig(); c.ReadRemoval = ReadRemovalSync; return c }(),
			PolicyLocal, true, nil},
		{"clustered", clusteredConfig(), PolicyClustered, false, nil},
		{"clustered skip lock", func() Config { c := clusteredConfig(); c.ReadLocking = ReadLockingSkip; return c }(),
			PolicyClustered, false, skip},
		{"pessimistic", txConfig(LockingPessimistic), PolicyClusteredTxPessimistic, false, skip},
		{"optimistic", txConfig(LockingOptimistic), PolicyClusteredTxOptimistic, true, zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(tt.cfg)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.readWait, p.WaitForRemoval(false))
			assert.True(t, p.WaitForRemoval(true), "writes always wait")
			assert.Equal(t, tt.readFlags, p.RemovalFlags(false))
			assert.Nil(t, p.RemovalFlags(true))
			assert.Equal(t, tt.kind != PolicyLocal, p.Clustered())
		})
	}
}

func TestKeySet(t *testing.T) {
	var s KeySet
	assert.True(t, s.TryAdd("k"))
	assert.False(t, s.TryAdd("k"))
	assert.True(t, s.Contains("k"))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Remove("k"))
	assert.False(t, s.Remove("k"))
	assert.Zero(t, s.Len())
}

func TestKeySet_ConcurrentTryAddHasSingleWinner(t *testing.T) {
	var s KeySet
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Go(func() {
			if s.TryAdd("k") {
				wins.Add(1)
			}
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRefSet(t *testing.T) {
	var s RefSet
	s.Done("missing")
	assert.False(t, s.Contains("missing"))

	s.Add("k")
	s.Add("k")
	s.Done("k")
	assert.True(t, s.Contains("k"))
	s.Done("k")
	assert.False(t, s.Contains("k"))
	s.Done("k")

	s.Add("k")
	assert.True(t, s.Contains("k"), "reusable after reaching zero")
}

func TestRefSet_ConcurrentAddDone(t *testing.T) {
	var s RefSet
	var wg sync.WaitGroup
	for i := range 100 {
		key := fmt.Sprintf("k%d", i%4)
		wg.Go(func() {
			s.Add(key)
			s.Done(key)
		})
	}
	wg.Wait()
	for i := range 4 {
		assert.False(t, s.Contains(fmt.Sprintf("k%d", i)))
	}
}

func TestInternalListeners(t *testing.T) {
	f := newFixture(t, localConfig(), Dependencies{})
	ctx := context.Background()

	var got []string
	id := f.m.AddInternalListener(func(_ context.Context, ev xentry.Event) { got = append(got, ev.Key) })
	f.m.AddInternalListener(func(context.Context, xentry.Event) { panic("listener bug") })

	require.NoError(t, f.m.NotifyExpired(ctx, xentry.Event{Key: "a", Source: xentry.SourceMemory}))
	assert.True(t, f.m.RemoveInternalListener(id))
	assert.False(t, f.m.RemoveInternalListener(id))
	require.NoError(t, f.m.NotifyExpired(ctx, xentry.Event{Key: "b", Source: xentry.SourceMemory}))

	assert.Equal(t, []string{"a"}, got)
	assert.Len(t, f.notifier.Events(), 2, "panicking listener does not block delivery")
	assert.Equal(t, uint64(2), f.m.Stats().Removed)
}

func TestStart_Disabled(t *testing.T) {
	f := newFixture(t, localConfig(), Dependencies{})
	require.NoError(t, f.m.Start(context.Background()))
	assert.ErrorIs(t, f.m.Start(context.Background()), ErrAlreadyStarted)
}

func TestStart_AfterStop(t *testing.T) {
	f := newFixture(t, localConfig(), Dependencies{})
	require.NoError(t, f.m.Stop(context.Background()))
	assert.ErrorIs(t, f.m.Start(context.Background()), ErrStopped)
}

// 使用真实时钟与 cron，最小调度间隔为 1 秒。
func TestStart_ReaperRunsPeriodically(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WakeUpInterval = time.Second
	f := newFixture(t, cfg, Dependencies{}, WithClock(clockwork.NewRealClock()))

	e := xentry.NewEntry("k", []byte("v"), xentry.NewMetadata(10*time.Millisecond, xentry.NoMaxIdle, time.Now()))
	_, err := f.container.Put(context.Background(), e)
	require.NoError(t, err)

	require.NoError(t, f.m.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(f.notifier.Events()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Nil(t, f.container.Get("k"))
	assert.GreaterOrEqual(t, f.m.Stats().Cycles, uint64(1))

	require.NoError(t, f.m.Stop(context.Background()))
	require.NoError(t, f.m.Stop(context.Background()), "idempotent")
}

func TestReschedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WakeUpInterval = time.Hour
	f := newFixture(t, cfg, Dependencies{}, WithClock(clockwork.NewRealClock()))
	require.NoError(t, f.m.Start(context.Background()))

	e := xentry.NewEntry("k", nil, xentry.NewMetadata(0, xentry.NoMaxIdle, time.Now()))
	_, err := f.container.Put(context.Background(), e)
	require.NoError(t, err)

	f.m.Reschedule(time.Second)
	assert.Equal(t, time.Second, f.m.Interval())
	assert.Eventually(t, func() bool { return f.container.Get("k") == nil }, 3*time.Second, 20*time.Millisecond)

	f.m.Reschedule(0)
	assert.Equal(t, time.Duration(0), f.m.Interval())
}
