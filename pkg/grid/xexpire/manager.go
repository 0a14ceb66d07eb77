package xexpire

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
	"github.com/omeyang/xgrid/pkg/util/xpool"
)

const component = "xexpire"

// Option 定义 Manager 可选配置。
type Option func(*Manager)

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock 设置时钟，nil 时忽略。测试中用于注入 clockwork.FakeClock。
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithObserver 设置观测器，nil 时忽略。
func WithObserver(o xmetrics.Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// ListenerID 标识一个内部过期监听器。
type ListenerID uint64

// InternalListener 在过期事件发出时被同步调用。
type InternalListener func(ctx context.Context, ev xentry.Event)

type internalListener struct {
	id ListenerID
	fn InternalListener
}

// Stats 是 Manager 的累计计数快照。
type Stats struct {
	// Cycles 已完成的回收周期数。
	Cycles uint64
	// Removed 已发出的过期事件数。
	Removed uint64
	// ClusterRemovals 成功完成的集群移除数。
	ClusterRemovals uint64
	// Skipped 因守卫占用、写抑制或复核不一致而跳过的次数。
	Skipped uint64
	// Failures 移除或存储删除失败次数。
	Failures uint64
}

type counters struct {
	cycles          atomic.Uint64
	removed         atomic.Uint64
	clusterRemovals atomic.Uint64
	skipped         atomic.Uint64
	failures        atomic.Uint64
}

// Manager 协调过期条目的发现与移除。
type Manager struct {
	cfg         Config
	policy      Policy
	container   DataContainer
	persistence Persistence
	notifier    Notifier
	txm         TxManager
	cache       atomic.Pointer[Cache]

	logger   *slog.Logger
	clock    clockwork.Clock
	observer xmetrics.Observer

	guard      KeySet
	suppressed RefSet
	notified   *notifiedLog
	pool       *xpool.Pool[func()]
	stats      counters

	listenerMu sync.Mutex
	listeners  atomic.Pointer[[]internalListener]
	nextID     ListenerID

	mu       sync.Mutex
	cron     *cron.Cron
	job      cron.Job
	entry    cron.EntryID
	interval time.Duration
	runCtx   context.Context
	cancel   context.CancelFunc
	started  bool
	stopped  bool
}

// New 创建 Manager。
func New(cfg Config, deps Dependencies, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	switch {
	case deps.Container == nil:
		return nil, ErrNilContainer
	case deps.Persistence == nil:
		return nil, ErrNilPersistence
	case deps.Notifier == nil:
		return nil, ErrNilNotifier
	}
	policy := NewPolicy(cfg)
	if policy.Transactional() && deps.TxManager == nil {
		return nil, ErrNilTxManager
	}

	m := &Manager{
		cfg:         cfg,
		policy:      policy,
		container:   deps.Container,
		persistence: deps.Persistence,
		notifier:    deps.Notifier,
		txm:         deps.TxManager,
		logger:      slog.Default(),
		clock:       clockwork.NewRealClock(),
		observer:    xmetrics.NoopObserver{},
		interval:    cfg.WakeUpInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if deps.Cache != nil {
		m.BindCache(deps.Cache)
	}

	notified, err := newNotifiedLog(notifiedCapacity)
	if err != nil {
		return nil, err
	}
	m.notified = notified

	pool, err := xpool.New(cfg.Workers, cfg.QueueSize, func(task func()) { task() },
		xpool.WithLogger(m.logger), xpool.WithName(component))
	if err != nil {
		return nil, err
	}
	m.pool = pool

	cl := cronLogger{logger: m.logger}
	// 同一个 job 实例跨 Reschedule 复用，SkipIfStillRunning 因此对所有调度生效
	m.job = cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).
		Then(cron.FuncJob(m.runCycle))
	return m, nil
}

// BindCache 绑定集群移除使用的缓存。
// 缓存的拦截器链依赖 Manager，因此允许在构造后绑定。nil 被忽略。
func (m *Manager) BindCache(c Cache) {
	if c != nil {
		m.cache.Store(&c)
	}
}

func (m *Manager) currentCache() Cache {
	if p := m.cache.Load(); p != nil {
		return *p
	}
	return nil
}

// Policy 返回当前策略。
func (m *Manager) Policy() Policy { return m.policy }

// Start 按配置调度周期回收。
// 回收被禁用时只记录日志并返回 nil。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.stopped:
		return ErrStopped
	case m.started:
		return ErrAlreadyStarted
	case m.policy.Clustered() && m.currentCache() == nil:
		return ErrNilCache
	}
	m.started = true

	m.runCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.cron = cron.New(cron.WithLogger(cronLogger{logger: m.logger}))
	m.cron.Start()

	if !m.cfg.ReaperEnabled {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "xexpire: reaper disabled")
		return nil
	}
	m.scheduleLocked(ctx, m.interval)
	return nil
}

// scheduleLocked 替换当前调度。调用方持有 m.mu。
func (m *Manager) scheduleLocked(ctx context.Context, interval time.Duration) {
	if m.entry != 0 {
		m.cron.Remove(m.entry)
		m.entry = 0
	}
	m.interval = interval
	if interval <= 0 {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "xexpire: reaper disabled",
			slog.Duration("wake_up_interval", interval))
		return
	}
	m.entry = m.cron.Schedule(cron.Every(interval), m.job)
	m.logger.LogAttrs(ctx, slog.LevelInfo, "xexpire: reaper scheduled",
		slog.Duration("wake_up_interval", interval),
		slog.String("policy", m.policy.Kind().String()))
}

// Reschedule 修改回收间隔，≤0 表示停止调度。
// 不足整秒的部分被调度器截断，调用方应先用 [Config.Validate] 校验。
// 尚未 Start 时只记录新间隔。正在运行的周期不受影响。
func (m *Manager) Reschedule(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.stopped || !m.cfg.ReaperEnabled {
		m.interval = interval
		return
	}
	m.scheduleLocked(m.runCtx, interval)
}

// Interval 返回当前回收间隔。
func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Stop 取消调度，等待正在运行的周期与异步移除完成。
// ctx 到期时返回 ctx.Err()。Stop 之后 Manager 不能再次 Start，
// 读路径触发的移除仍可用（在调用方协程内执行）。
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	c, cancel := m.cron, m.cancel
	m.mu.Unlock()

	var err error
	if c != nil {
		stopCtx := c.Stop()
		cancel()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if perr := m.pool.Shutdown(ctx); perr != nil && err == nil {
		err = perr
	}
	return err
}

func (m *Manager) runCycle() {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()
	if err := m.ProcessExpiration(ctx); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: cycle ended early", slog.Any("error", err))
	}
}

// submit 在执行器上运行 task。执行器队列满或已关闭时在当前协程执行。
func (m *Manager) submit(task func()) {
	if err := m.pool.Submit(task); err != nil {
		task()
	}
}

// Stats 返回累计计数快照。
func (m *Manager) Stats() Stats {
	return Stats{
		Cycles:          m.stats.cycles.Load(),
		Removed:         m.stats.removed.Load(),
		ClusterRemovals: m.stats.clusterRemovals.Load(),
		Skipped:         m.stats.skipped.Load(),
		Failures:        m.stats.failures.Load(),
	}
}

// RegisterWriteIncoming 登记 key 上一个进行中的写。
// 新的写同时清除 key 的已通知记录。
func (m *Manager) RegisterWriteIncoming(key string) {
	m.suppressed.Add(key)
	m.notified.forget(key)
}

// UnregisterWrite 注销 key 上一个进行中的写。
func (m *Manager) UnregisterWrite(key string) {
	m.suppressed.Done(key)
}

// IsWriteSuppressed 报告 key 是否有进行中的写。
func (m *Manager) IsWriteSuppressed(key string) bool {
	return m.suppressed.Contains(key)
}

// AlreadyNotified 报告 key 上 created 时刻创建的条目是否已经发出过过期事件。
// created 为零值表示调用方只知道 key。存储在内存副本移除之后再次报告同一行时，
// 用它避免第二次删除与通知。
func (m *Manager) AlreadyNotified(key string, created time.Time) bool {
	return m.notified.covers(key, created)
}

// IsGuarded 报告 key 是否有进行中的过期移除。
func (m *Manager) IsGuarded(key string) bool {
	return m.guard.Contains(key)
}

// AddInternalListener 注册内部监听器，返回用于注销的 ID。
func (m *Manager) AddInternalListener(fn InternalListener) ListenerID {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.nextID++
	var next []internalListener
	if cur := m.listeners.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, internalListener{id: m.nextID, fn: fn})
	m.listeners.Store(&next)
	return m.nextID
}

// RemoveInternalListener 注销内部监听器，返回是否存在。
func (m *Manager) RemoveInternalListener(id ListenerID) bool {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	cur := m.listeners.Load()
	if cur == nil {
		return false
	}
	next := make([]internalListener, 0, len(*cur))
	for _, l := range *cur {
		if l.id != id {
			next = append(next, l)
		}
	}
	if len(next) == len(*cur) {
		return false
	}
	m.listeners.Store(&next)
	return true
}

// NotifyExpired 发出过期事件：先调用内部监听器，再交给通知总线。
// 只能在条目已从数据容器移除之后调用。缓存写路径完成集群移除后也通过它发出事件。
func (m *Manager) NotifyExpired(ctx context.Context, ev xentry.Event) error {
	m.stats.removed.Add(1)
	m.notified.record(ev.Key, m.clock.Now())
	xmetrics.RecordRemoval(ctx, m.observer, string(ev.Source))
	if cur := m.listeners.Load(); cur != nil {
		for _, l := range *cur {
			m.callListener(ctx, l, ev)
		}
	}
	err := m.notifier.NotifyExpired(ctx, ev)
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "xexpire: notify expired",
			slog.String("key", ev.Key), slog.Any("error", err))
	}
	return err
}

func (m *Manager) callListener(ctx context.Context, l internalListener, ev xentry.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "xexpire: internal listener panic",
				slog.Uint64("listener", uint64(l.id)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	l.fn(ctx, ev)
}
