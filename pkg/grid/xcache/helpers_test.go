package xcache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xexpire"
	"github.com/omeyang/xgrid/pkg/grid/xnotify"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/grid/xtx"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
	"github.com/omeyang/xgrid/pkg/util/xid"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// harness 用真实协作者组装一个单节点网格。
type harness struct {
	cache     *Cache
	exp       *xexpire.Manager
	container *xentry.Container
	persist   *xpersist.Manager
	store     *xpersist.MemoryStore
	txm       *xtx.Manager
	clock     *clockwork.FakeClock

	mu     sync.Mutex
	events []xentry.Event
}

type harnessOptions struct {
	exp      xexpire.Config
	cache    Config
	stores   []xpersist.Store
	observer xmetrics.Observer
}

func localExpiration() xexpire.Config {
	cfg := xexpire.DefaultConfig()
	cfg.ReaperEnabled = false
	return cfg
}

func clusteredExpiration() xexpire.Config {
	cfg := localExpiration()
	cfg.Mode = xexpire.ModeClustered
	cfg.ReadRemoval = xexpire.ReadRemovalSync
	return cfg
}

func newHarness(t *testing.T, o harnessOptions) *harness {
	t.Helper()
	h := &harness{clock: clockwork.NewFakeClockAt(t0), txm: xtx.New(xtx.WithLogger(discard))}

	c, err := xentry.NewContainer(xentry.ContainerConfig{Segments: 4, MaxEntries: 1024})
	require.NoError(t, err)
	h.container = c

	stores := o.stores
	if stores == nil {
		h.store = xpersist.NewMemoryStore("mem")
		stores = []xpersist.Store{h.store}
	}
	h.persist, err = xpersist.NewManager(xpersist.Config{}, stores,
		xpersist.WithLogger(discard), xpersist.WithClock(h.clock))
	require.NoError(t, err)

	bus := xnotify.New(xnotify.WithLogger(discard))
	_, err = bus.Subscribe(xnotify.ListenerFunc(func(_ context.Context, ev xentry.Event) error {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	expCfg := o.exp
	if expCfg.Mode == "" {
		expCfg = localExpiration()
	}
	h.exp, err = xexpire.New(expCfg, xexpire.Dependencies{
		Container:   c,
		Persistence: h.persist,
		Notifier:    bus,
		TxManager:   h.txm,
	}, xexpire.WithLogger(discard), xexpire.WithClock(h.clock))
	require.NoError(t, err)

	gen, err := xid.NewGenerator(xid.WithStaticMachineID(1))
	require.NoError(t, err)
	h.cache, err = New(o.cache, Dependencies{
		Container:   c,
		Persistence: h.persist,
		Expiration:  h.exp,
		TxManager:   h.txm,
	}, WithLogger(discard), WithClock(h.clock), WithVersionGenerator(gen), WithObserver(o.observer))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		require.NoError(t, h.exp.Stop(ctx))
		require.NoError(t, h.persist.Close(ctx))
		require.NoError(t, h.cache.Close())
	})
	return h
}

func (h *harness) Events() []xentry.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]xentry.Event(nil), h.events...)
}

// writeRow 绕过缓存直接写入存储，模拟其他节点或重启前写入的数据。
func (h *harness) writeRow(t *testing.T, key, value string, md xentry.Metadata) {
	t.Helper()
	require.NoError(t, h.store.Write(context.Background(), xpersist.Row{Key: key, Value: []byte(value), Metadata: md}))
}

func (h *harness) storeHas(key string) bool {
	row, _ := h.store.Load(context.Background(), key)
	return row != nil
}
