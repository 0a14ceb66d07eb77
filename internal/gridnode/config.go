package gridnode

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xgrid/pkg/config/xconf"
	"github.com/omeyang/xgrid/pkg/grid/xcache"
	"github.com/omeyang/xgrid/pkg/grid/xentry"
	"github.com/omeyang/xgrid/pkg/grid/xexpire"
	"github.com/omeyang/xgrid/pkg/grid/xpersist"
	"github.com/omeyang/xgrid/pkg/observability/xlog"
	"github.com/omeyang/xgrid/pkg/observability/xmetrics"
)

// StoreType 是存储类型。
type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreRedis  StoreType = "redis"
)

// ErrInvalidConfig 表示网格配置无效。
var ErrInvalidConfig = errors.New("gridnode: invalid config")

// Config 是网格配置文件的根。
type Config struct {
	Node        NodeConfig             `koanf:"node"`
	Container   xentry.ContainerConfig `koanf:"container"`
	Expiration  xexpire.Config         `koanf:"expiration"`
	Persistence xpersist.Config        `koanf:"persistence"`
	Stores      []StoreConfig          `koanf:"stores"`
	Cache       xcache.Config          `koanf:"cache"`
	Notify      NotifyConfig           `koanf:"notify"`
	Metrics     MetricsConfig          `koanf:"metrics"`
	Log         xlog.Config            `koanf:"log"`
}

// NodeConfig 定义节点身份。
type NodeConfig struct {
	// ID 节点 ID，用于条目版本号；为负时从环境变量或主机名推导。
	ID int `koanf:"id"`
}

// StoreConfig 定义一个持久化存储。
type StoreConfig struct {
	Name     string      `koanf:"name"`
	Type     StoreType   `koanf:"type"`
	Shared   bool        `koanf:"shared"`
	ReadOnly bool        `koanf:"read_only"`
	Redis    RedisConfig `koanf:"redis"`
}

// RedisConfig 定义 Redis 连接与清理参数。
type RedisConfig struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	KeyPrefix   string        `koanf:"key_prefix"`
	PurgeValues bool          `koanf:"purge_values"`
	PurgeBatch  int64         `koanf:"purge_batch"`
	PurgeLock   time.Duration `koanf:"purge_lock"`
	PurgeRate   int           `koanf:"purge_rate"`

	// BreakerFailures 连续失败多少次后熔断，0 使用存储默认值。
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerOpen     time.Duration `koanf:"breaker_open"`
}

// NotifyConfig 定义过期事件的外部发布。Channel 为空时不发布。
type NotifyConfig struct {
	Channel string      `koanf:"channel"`
	Redis   RedisConfig `koanf:"redis"`
}

// MetricsConfig 定义指标暴露。
type MetricsConfig struct {
	// Addr 是 /metrics 的监听地址，为空时不监听。
	Addr       string              `koanf:"addr"`
	Prometheus xmetrics.PromConfig `koanf:"prometheus"`
}

// DefaultConfig 返回没有持久化存储的本地网格配置。
// 容器配置的零值由 xentry.NewContainer 补齐并校验。
func DefaultConfig() Config {
	return Config{
		Node:       NodeConfig{ID: -1},
		Expiration: xexpire.DefaultConfig(),
		Cache:      xcache.DefaultConfig(),
	}
}

// Load 在默认配置之上加载 cfg 的全部内容并校验。
func Load(cfg xconf.Config) (Config, error) {
	c := DefaultConfig()
	if err := cfg.Unmarshal("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate 校验所有段落。
func (c Config) Validate() error {
	if c.Node.ID > 0xFFFF {
		return fmt.Errorf("%w: node.id %d out of range", ErrInvalidConfig, c.Node.ID)
	}
	if err := c.Expiration.Validate(); err != nil {
		return fmt.Errorf("%w: expiration: %w", ErrInvalidConfig, err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("%w: cache: %w", ErrInvalidConfig, err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: log: %w", ErrInvalidConfig, err)
	}
	seen := make(map[string]struct{}, len(c.Stores))
	for i, s := range c.Stores {
		if s.Name == "" {
			return fmt.Errorf("%w: stores[%d]: empty name", ErrInvalidConfig, i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: stores[%d]: duplicate name %q", ErrInvalidConfig, i, s.Name)
		}
		seen[s.Name] = struct{}{}
		switch s.Type {
		case StoreMemory:
		case StoreRedis:
			if s.Redis.Addr == "" {
				return fmt.Errorf("%w: stores[%d]: redis.addr is required", ErrInvalidConfig, i)
			}
		default:
			return fmt.Errorf("%w: stores[%d]: unknown type %q", ErrInvalidConfig, i, s.Type)
		}
	}
	if c.Notify.Channel != "" && c.Notify.Redis.Addr == "" {
		return fmt.Errorf("%w: notify.redis.addr is required when notify.channel is set", ErrInvalidConfig)
	}
	return nil
}
