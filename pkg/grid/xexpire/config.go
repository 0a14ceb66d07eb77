package xexpire

import (
	"fmt"
	"time"
)

// Mode 是缓存的部署模式。
type Mode string

const (
	// ModeLocal 表示本地（非集群）缓存。
	ModeLocal Mode = "local"
	// ModeClustered 表示集群缓存。
	ModeClustered Mode = "clustered"
)

// Locking 是事务缓存的加锁模式。
type Locking string

const (
	// LockingOptimistic 乐观锁。
	LockingOptimistic Locking = "optimistic"
	// LockingPessimistic 悲观锁。
	LockingPessimistic Locking = "pessimistic"
)

// ReadRemoval 决定非事务模式下读触发的移除是否等待完成。
type ReadRemoval string

const (
	// ReadRemovalAsync 读不等待移除完成。
	ReadRemovalAsync ReadRemoval = "async"
	// ReadRemovalSync 读等待移除完成。
	ReadRemovalSync ReadRemoval = "sync"
)

// ReadLocking 决定非事务模式下读触发的集群移除是否加锁。
type ReadLocking string

const (
	// ReadLockingAcquire 正常加锁。
	ReadLockingAcquire ReadLocking = "acquire"
	// ReadLockingSkip 跳过加锁。
	ReadLockingSkip ReadLocking = "skip"
)

const (
	defaultWakeUpInterval = time.Minute
	defaultWorkers        = 4
	defaultQueueSize      = 1024
)

// Config 定义过期处理配置。
type Config struct {
	// ReaperEnabled 是否启用周期回收。
	ReaperEnabled bool `koanf:"reaper_enabled"`
	// WakeUpInterval 回收周期间隔，≤0 表示禁用。
	// 调度器的精度是 1 秒，正值必须是整秒数。
	WakeUpInterval time.Duration `koanf:"wake_up_interval"`
	// Mode 部署模式，默认 local。
	Mode Mode `koanf:"mode"`
	// Transactional 是否为事务缓存（仅集群模式有意义）。
	Transactional bool `koanf:"transactional"`
	// Locking 事务加锁模式，默认 optimistic。
	Locking Locking `koanf:"locking"`
	// ReadRemoval 非事务模式下读触发移除的等待行为，默认 async。
	ReadRemoval ReadRemoval `koanf:"read_removal"`
	// ReadLocking 非事务集群模式下读触发移除的加锁行为，默认 acquire。
	ReadLocking ReadLocking `koanf:"read_locking"`
	// Workers 异步移除的工作协程数，默认 4。
	Workers int `koanf:"workers"`
	// QueueSize 异步移除队列长度，默认 1024。队列满时调用方同步执行。
	QueueSize int `koanf:"queue_size"`
}

// DefaultConfig 返回默认配置：本地模式，每分钟回收一次。
func DefaultConfig() Config {
	return Config{
		ReaperEnabled:  true,
		WakeUpInterval: defaultWakeUpInterval,
		Mode:           ModeLocal,
		Locking:        LockingOptimistic,
		ReadRemoval:    ReadRemovalAsync,
		ReadLocking:    ReadLockingAcquire,
		Workers:        defaultWorkers,
		QueueSize:      defaultQueueSize,
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Locking == "" {
		c.Locking = LockingOptimistic
	}
	if c.ReadRemoval == "" {
		c.ReadRemoval = ReadRemovalAsync
	}
	if c.ReadLocking == "" {
		c.ReadLocking = ReadLockingAcquire
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
}

// Validate 校验配置，空字段按默认值处理。
func (c Config) Validate() error {
	c.applyDefaults()
	switch c.Mode {
	case ModeLocal, ModeClustered:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidConfig, c.Mode)
	}
	switch c.Locking {
	case LockingOptimistic, LockingPessimistic:
	default:
		return fmt.Errorf("%w: locking %q", ErrInvalidConfig, c.Locking)
	}
	switch c.ReadRemoval {
	case ReadRemovalAsync, ReadRemovalSync:
	default:
		return fmt.Errorf("%w: read_removal %q", ErrInvalidConfig, c.ReadRemoval)
	}
	switch c.ReadLocking {
	case ReadLockingAcquire, ReadLockingSkip:
	default:
		return fmt.Errorf("%w: read_locking %q", ErrInvalidConfig, c.ReadLocking)
	}
	if c.WakeUpInterval > 0 && c.WakeUpInterval%time.Second != 0 {
		return fmt.Errorf("%w: wake_up_interval %s must be a whole number of seconds", ErrInvalidConfig, c.WakeUpInterval)
	}
	if c.Transactional && c.Mode != ModeClustered {
		return fmt.Errorf("%w: transactional requires clustered mode", ErrInvalidConfig)
	}
	if c.Workers < 0 || c.QueueSize < 0 {
		return fmt.Errorf("%w: workers=%d queue_size=%d", ErrInvalidConfig, c.Workers, c.QueueSize)
	}
	return nil
}

// reaperEnabled 报告是否需要调度回收任务。
func (c Config) reaperEnabled() bool {
	return c.ReaperEnabled && c.WakeUpInterval > 0
}
