package xcache

import (
	"fmt"
	"time"
)

const (
	defaultNegativeTTL      = 2 * time.Second
	defaultNegativeCapacity = 10000
	defaultLockStripes      = 256
	defaultLoadTimeout      = 5 * time.Second
)

// Config 定义缓存配置。
type Config struct {
	// NegativeTTL 负缓存的有效期，默认 2s；为负时关闭负缓存。
	NegativeTTL time.Duration `koanf:"negative_ttl"`
	// NegativeCapacity 负缓存最多记录的 key 数量，默认 10000。
	NegativeCapacity int64 `koanf:"negative_capacity"`
	// LockStripes key 锁的槽数量，必须为 2 的幂，默认 256。
	LockStripes int `koanf:"lock_stripes"`
	// LoadTimeout 单次读穿透加载的超时，独立于调用方的 ctx，默认 5s。
	LoadTimeout time.Duration `koanf:"load_timeout"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.NegativeTTL == 0 {
		c.NegativeTTL = defaultNegativeTTL
	}
	if c.NegativeCapacity <= 0 {
		c.NegativeCapacity = defaultNegativeCapacity
	}
	if c.LockStripes == 0 {
		c.LockStripes = defaultLockStripes
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = defaultLoadTimeout
	}
}

// Validate 校验配置。零值字段视为使用默认值。
func (c Config) Validate() error {
	if c.LockStripes < 0 || c.LockStripes&(c.LockStripes-1) != 0 {
		return fmt.Errorf("xcache: lock_stripes must be a power of two, got %d", c.LockStripes)
	}
	return nil
}

func (c Config) negativeEnabled() bool {
	return c.NegativeTTL > 0
}
