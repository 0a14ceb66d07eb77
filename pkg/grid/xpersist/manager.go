package xpersist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDeleteAttempts = 3
	defaultDeleteDelay    = 50 * time.Millisecond
	defaultParallelism    = 8
)

// Config 定义持久化层配置。
type Config struct {
	// DeleteAttempts 异步删除的最大尝试次数（含首次），默认 3。
	DeleteAttempts uint `koanf:"delete_attempts"`
	// DeleteDelay 异步删除重试的初始间隔（指数退避），默认 50ms。
	DeleteDelay time.Duration `koanf:"delete_delay"`
	// Parallelism 并行访问的存储数上限，默认 8。
	Parallelism int `koanf:"parallelism"`
}

func (c *Config) applyDefaults() {
	if c.DeleteAttempts == 0 {
		c.DeleteAttempts = defaultDeleteAttempts
	}
	if c.DeleteDelay <= 0 {
		c.DeleteDelay = defaultDeleteDelay
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
}

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

// WithClock 设置时钟，用于清理判定与重试等待。nil 时忽略。
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// DeleteResult 是异步删除的结果。
type DeleteResult struct {
	Key string
	// Deleted 表示至少一个存储真正删除了一行。
	Deleted bool
	Err     error
}

// Manager 组合多个存储。
type Manager struct {
	cfg    Config
	stores []Store
	logger *slog.Logger
	clock  clockwork.Clock

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager 创建持久化层。stores 可以为空（纯内存缓存）。
func NewManager(cfg Config, stores []Store, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	seen := make(map[string]struct{}, len(stores))
	for i, s := range stores {
		if s == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilStore, i)
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStore, s.Name())
		}
		seen[s.Name()] = struct{}{}
	}
	m := &Manager{
		cfg:    cfg,
		stores: stores,
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Stores 返回全部存储。
func (m *Manager) Stores() []Store {
	return m.stores
}

// HasWriter 报告是否存在可写存储。
func (m *Manager) HasWriter() bool {
	for _, s := range m.stores {
		if !s.Characteristics().ReadOnly {
			return true
		}
	}
	return false
}

func (m *Manager) writers(mode AccessMode) []Store {
	out := make([]Store, 0, len(m.stores))
	for _, s := range m.stores {
		c := s.Characteristics()
		if !c.ReadOnly && mode.Matches(c) {
			out = append(out, s)
		}
	}
	return out
}

// fanOut 对 targets 并行执行 fn，汇总所有错误。
func (m *Manager) fanOut(ctx context.Context, targets []Store, fn func(ctx context.Context, i int, s Store) error) error {
	if len(targets) == 1 {
		return fn(ctx, 0, targets[0])
	}
	errs := make([]error, len(targets))
	var g errgroup.Group
	g.SetLimit(m.cfg.Parallelism)
	for i, s := range targets {
		g.Go(func() error {
			errs[i] = fn(ctx, i, s)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Load 按顺序查询存储，返回第一个命中的行；都未命中时返回 (nil, nil)。
func (m *Manager) Load(ctx context.Context, key string) (*Row, error) {
	var errs []error
	for _, s := range m.stores {
		row, err := s.Load(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if row != nil {
			return row, nil
		}
	}
	return nil, errors.Join(errs...)
}

// Write 将 row 写入所有匹配 mode 的可写存储。
func (m *Manager) Write(ctx context.Context, row Row, mode AccessMode) error {
	return m.fanOut(ctx, m.writers(mode), func(ctx context.Context, _ int, s Store) error {
		return s.Write(ctx, row)
	})
}

// DeleteFromAllStores 从所有匹配 mode 的可写存储中删除 key。
// 返回值表示是否至少一个存储真正删除了一行；部分存储失败时同时返回错误。
func (m *Manager) DeleteFromAllStores(ctx context.Context, key string, segment int, mode AccessMode) (bool, error) {
	targets := m.writers(mode)
	if len(targets) == 0 {
		return false, nil
	}
	deleted := make([]bool, len(targets))
	err := m.fanOut(ctx, targets, func(ctx context.Context, i int, s Store) error {
		ok, err := s.Delete(ctx, key)
		deleted[i] = ok
		return err
	})
	removed := slices.Contains(deleted, true)
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelDebug, "xpersist: delete from stores",
			slog.String("key", key), slog.Int("segment", segment),
			slog.String("mode", mode.String()), slog.Any("error", err))
	}
	return removed, err
}

// DeleteFromAllStoresAsync 在后台执行 DeleteFromAllStores，失败时按配置重试。
// 返回的 channel 恰好产出一个结果后关闭。
// 删除与 ctx 的取消解耦：已开始的删除会执行完毕，由 [Manager.Close] 等待。
func (m *Manager) DeleteFromAllStoresAsync(ctx context.Context, key string, segment int, mode AccessMode) <-chan DeleteResult {
	out := make(chan DeleteResult, 1)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		out <- DeleteResult{Key: key, Err: ErrManagerClosed}
		close(out)
		return out
	}

	ctx = context.WithoutCancel(ctx)
	m.wg.Go(func() {
		defer close(out)
		var deleted bool
		err := retry.New(
			retry.Context(ctx),
			retry.Attempts(m.cfg.DeleteAttempts),
			retry.Delay(m.cfg.DeleteDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.WithTimer(m.clock),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, ErrStoreUnavailable)
			}),
			retry.OnRetry(func(n uint, err error) {
				m.logger.LogAttrs(ctx, slog.LevelDebug, "xpersist: retrying store delete",
					slog.String("key", key), slog.Uint64("attempt", uint64(n)+1), slog.Any("error", err))
			}),
		).Do(func() error {
			d, err := m.DeleteFromAllStores(ctx, key, segment, mode)
			deleted = deleted || d
			return err
		})
		if err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "xpersist: async store delete failed",
				slog.String("key", key), slog.Any("error", err))
		}
		out <- DeleteResult{Key: key, Deleted: deleted, Err: err}
	})
	return out
}

// PurgeExpired 依次让每个可写存储清理过期行，并把每一行交给 l。
// 单个存储失败不影响其他存储，所有错误合并返回。
func (m *Manager) PurgeExpired(ctx context.Context, l PurgeListener) error {
	if l == nil {
		return ErrNilListener
	}
	now := m.clock.Now()
	var errs []error
	for _, s := range m.writers(ModeBoth) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := s.PurgeExpired(ctx, now, func(r PurgedRow) {
			if r.Metadata != nil {
				l.HandleStoreExpirationEntry(ctx, r.Key, r.Value, *r.Metadata)
				return
			}
			l.HandleStoreExpiration(ctx, r.Key)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("xpersist: purge %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Clear 清空所有可写存储。
func (m *Manager) Clear(ctx context.Context) error {
	return m.fanOut(ctx, m.writers(ModeBoth), func(ctx context.Context, _ int, s Store) error {
		return s.Clear(ctx)
	})
}

// Close 拒绝新的异步删除，并等待进行中的异步删除结束或 ctx 到期。
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
