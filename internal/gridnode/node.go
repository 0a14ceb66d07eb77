package gridnode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xgrid/pkg/grid/xcache"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xexpire"
	"github.com/omeyang/xgrid/pkg/grid/xnotify"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/grid/xtx"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
	"github.com/omeyang/xgrid/pkg/util/xid"
)

// Option 定义节点可选配置。
type Option func(*buildOptions)

type buildOptions struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	observer xmetrics.Observer
	clients  func(RedisConfig) redis.UniversalClient
}

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(o *buildOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock 设置全部组件共用的时钟，nil 时忽略。
func WithClock(c clockwork.Clock) Option {
	return func(o *buildOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserver 设置额外的观测器，与 Prometheus 观测器组合使用。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *buildOptions) {
		o.observer = obs
	}
}

// WithRedisClientFactory 替换 Redis 客户端的创建方式。
func WithRedisClientFactory(fn func(RedisConfig) redis.UniversalClient) Option {
	return func(o *buildOptions) {
		if fn != nil {
			o.clients = fn
		}
	}
}

func newRedisClient(c RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
}

// Node 是组装好的单节点网格。
type Node struct {
	Container   *xentry.Container
	Persistence *xpersist.Manager
	Bus         *xnotify.Bus
	Tx          *xtx.Manager
	Expiration  *xexpire.Manager
	Cache       *xcache.Cache
	Metrics     *xmetrics.PromObserver

	logger  *slog.Logger
	clients []redis.UniversalClient
}

// New 按 cfg 组装节点。返回错误时已创建的资源都已释放。
func New(cfg Config, opts ...Option) (n *Node, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions{logger: slog.Default(), clock: clockwork.NewRealClock(), clients: newRedisClient}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	n = &Node{logger: o.logger}
	defer func() {
		if err != nil {
			n.closeClients()
		}
	}()

	if n.Metrics, err = xmetrics.NewPromObserver(cfg.Metrics.Prometheus); err != nil {
		return nil, err
	}
	observer := xmetrics.Multi(n.Metrics, o.observer)

	if n.Container, err = xentry.NewContainer(cfg.Container); err != nil {
		return nil, err
	}
	stores, err := n.buildStores(cfg.Stores, o)
	if err != nil {
		return nil, err
	}
	if n.Persistence, err = xpersist.NewManager(cfg.Persistence, stores,
		xpersist.WithLogger(o.logger), xpersist.WithClock(o.clock)); err != nil {
		return nil, err
	}

	n.Bus = xnotify.New(xnotify.WithLogger(o.logger))
	if cfg.Notify.Channel != "" {
		client := n.track(o.clients(cfg.Notify.Redis))
		pub, err := xnotify.NewRedisPublisher(client, cfg.Notify.Channel)
		if err != nil {
			return nil, err
		}
		if _, err := n.Bus.Subscribe(pub); err != nil {
			return nil, err
		}
	}

	n.Tx = xtx.New(xtx.WithLogger(o.logger))
	if n.Expiration, err = xexpire.New(cfg.Expiration, xexpire.Dependencies{
		Container:   n.Container,
		Persistence: n.Persistence,
		Notifier:    n.Bus,
		TxManager:   n.Tx,
	}, xexpire.WithLogger(o.logger), xexpire.WithClock(o.clock), xexpire.WithObserver(observer)); err != nil {
		return nil, err
	}

	idOpts := []xid.Option{}
	if cfg.Node.ID >= 0 {
		idOpts = append(idOpts, xid.WithStaticMachineID(uint16(cfg.Node.ID)))
	}
	gen, err := xid.NewGenerator(idOpts...)
	if err != nil {
		return nil, errors.Join(err, n.Expiration.Stop(context.Background()))
	}
	if n.Cache, err = xcache.New(cfg.Cache, xcache.Dependencies{
		Container:   n.Container,
		Persistence: n.Persistence,
		Expiration:  n.Expiration,
		TxManager:   n.Tx,
	}, xcache.WithLogger(o.logger), xcache.WithClock(o.clock), xcache.WithObserver(observer),
		xcache.WithVersionGenerator(gen)); err != nil {
		return nil, errors.Join(err, n.Expiration.Stop(context.Background()))
	}
	return n, nil
}

func (n *Node) buildStores(cfgs []StoreConfig, o buildOptions) ([]xpersist.Store, error) {
	stores := make([]xpersist.Store, 0, len(cfgs))
	for _, sc := range cfgs {
		switch sc.Type {
		case StoreMemory:
			stores = append(stores, xpersist.NewMemoryStore(sc.Name,
				xpersist.WithShared(sc.Shared), xpersist.WithReadOnly(sc.ReadOnly)))
		case StoreRedis:
			rc := sc.Redis
			s, err := xpersist.NewRedisStore(sc.Name, n.track(o.clients(rc)),
				xpersist.WithRedisShared(sc.Shared),
				xpersist.WithKeyPrefix(rc.KeyPrefix),
				xpersist.WithPurgeValues(rc.PurgeValues),
				xpersist.WithPurgeBatch(rc.PurgeBatch),
				xpersist.WithPurgeLock(rc.PurgeLock),
				xpersist.WithPurgeRate(rc.PurgeRate),
				xpersist.WithBreaker(rc.BreakerFailures, rc.BreakerOpen),
				xpersist.WithRedisLogger(o.logger))
			if err != nil {
				return nil, fmt.Errorf("gridnode: store %s: %w", sc.Name, err)
			}
			stores = append(stores, s)
		}
	}
	return stores, nil
}

func (n *Node) track(c redis.UniversalClient) redis.UniversalClient {
	n.clients = append(n.clients, c)
	return c
}

// Start 启动周期回收。
func (n *Node) Start(ctx context.Context) error {
	return n.Expiration.Start(ctx)
}

// Reload 应用可热更新的配置，目前只有回收间隔。
// 其余段落的变化需要重启节点才会生效。
func (n *Node) Reload(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Expiration.WakeUpInterval != n.Expiration.Interval() {
		n.logger.Info("gridnode: reaper interval changed",
			slog.Duration("from", n.Expiration.Interval()),
			slog.Duration("to", cfg.Expiration.WakeUpInterval))
	}
	n.Expiration.Reschedule(cfg.Expiration.WakeUpInterval)
	return nil
}

// Close 依次停止回收、等待异步删除、关闭缓存与 Redis 连接。
func (n *Node) Close(ctx context.Context) error {
	return errors.Join(
		n.Expiration.Stop(ctx),
		n.Persistence.Close(ctx),
		n.Cache.Close(),
		n.closeClients(),
	)
}

func (n *Node) closeClients() error {
	var errs []error
	for _, c := range n.clients {
		errs = append(errs, c.Close())
	}
	n.clients = nil
	return errors.Join(errs...)
}
