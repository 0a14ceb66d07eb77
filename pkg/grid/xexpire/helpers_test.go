package xexpire

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakePersistence 记录删除调用。block 非 nil 时删除在 entered 通知后阻塞到 block 关闭。
type fakePersistence struct {
	mu         sync.Mutex
	writer     bool
	deletes    []string
	rows       []xpersist.PurgedRow
	purgeCalls int

	entered chan string
	block   chan struct{}
}

func (p *fakePersistence) PurgeExpired(ctx context.Context, l xpersist.PurgeListener) error {
	p.mu.Lock()
	rows := p.rows
	p.rows = nil
	p.purgeCalls++
	p.mu.Unlock()
	for _, r := range rows {
		if r.Metadata != nil {
			l.HandleStoreExpirationEntry(ctx, r.Key, r.Value, *r.Metadata)
			continue
		}
		l.HandleStoreExpiration(ctx, r.Key)
	}
	return nil
}

func (p *fakePersistence) DeleteFromAllStores(_ context.Context, key string, _ int, _ xpersist.AccessMode) (bool, error) {
	p.mu.Lock()
	p.deletes = append(p.deletes, key)
	p.rows = slices.DeleteFunc(p.rows, func(r xpersist.PurgedRow) bool { return r.Key == key })
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- key
	}
	if p.block != nil {
		<-p.block
	}
	return true, nil
}

func (p *fakePersistence) DeleteFromAllStoresAsync(ctx context.Context, key string, segment int, mode xpersist.AccessMode) <-chan xpersist.DeleteResult {
	out := make(chan xpersist.DeleteResult, 1)
	go func() {
		defer close(out)
		d, err := p.DeleteFromAllStores(ctx, key, segment, mode)
		out <- xpersist.DeleteResult{Key: key, Deleted: d, Err: err}
	}()
	return out
}

func (p *fakePersistence) HasWriter() bool { return p.writer }

func (p *fakePersistence) Deletes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deletes...)
}

func (p *fakePersistence) PurgeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.purgeCalls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []xentry.Event
}

func (n *recordingNotifier) NotifyExpired(_ context.Context, ev xentry.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Events() []xentry.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]xentry.Event(nil), n.events...)
}

type fixture struct {
	m         *Manager
	container *xentry.Container
	store     *fakePersistence
	notifier  *recordingNotifier
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg Config, deps Dependencies, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    &fakePersistence{},
		notifier: &recordingNotifier{},
		clock:    clockwork.NewFakeClockAt(t0),
	}
	c, err := xentry.NewContainer(xentry.ContainerConfig{Segments: 4, MaxEntries: 1024})
	require.NoError(t, err)
	f.container = c

	if deps.Container == nil {
		deps.Container = c
	}
	if deps.Persistence == nil {
		deps.Persistence = f.store
	}
	if deps.Notifier == nil {
		deps.Notifier = f.notifier
	}
	opts = append([]Option{WithLogger(discard), WithClock(f.clock)}, opts...)
	m, err := New(cfg, deps, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Stop(context.Background())) })
	f.m = m
	return f
}

// put 以当前假时钟时间安装条目。
func (f *fixture) put(t *testing.T, key, value string, lifespan, maxIdle time.Duration) *xentry.Entry {
	t.Helper()
	e := xentry.NewEntry(key, []byte(value), xentry.NewMetadata(lifespan, maxIdle, f.clock.Now()))
	_, err := f.container.Put(context.Background(), e)
	require.NoError(t, err)
	return e
}

func localConfig() Config {
	cfg := DefaultConfig()
	cfg.ReaperEnabled = false
	return cfg
}

func clusteredConfig() Config {
	cfg := localConfig()
	cfg.Mode = ModeClustered
	return cfg
}
