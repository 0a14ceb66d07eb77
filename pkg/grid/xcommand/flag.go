package xcommand

import "strings"

// Flag 是命令标志位集合。
type Flag uint32

const (
	// FlagSkipLocking 跳过 key 锁获取（调用方已持有锁）。
	FlagSkipLocking Flag = 1 << iota
	// FlagZeroLockTimeout 以零等待获取 key 锁，锁被占用时立即失败。
	FlagZeroLockTimeout
	// FlagSkipStore 只作用于内存，不写入持久化存储。
	FlagSkipStore
	// FlagPurgedFromStore 标记过期移除由存储清理发起，对应的行已被存储删除。
	FlagPurgedFromStore
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{FlagSkipLocking, "SKIP_LOCKING"},
	{FlagZeroLockTimeout, "ZERO_LOCK_ACQUISITION_TIMEOUT"},
	{FlagSkipStore, "SKIP_CACHE_STORE"},
	{FlagPurgedFromStore, "PURGED_FROM_STORE"},
}

// Combine 合并多个标志。
func Combine(flags ...Flag) Flag {
	var f Flag
	for _, x := range flags {
		f |= x
	}
	return f
}

// LockFlags 合并事务内各修改的加锁策略，叠加到 base 上。
// 任一修改要求零等待时整体零等待；只有全部修改都跳过加锁时才跳过。
func LockFlags(base Flag, mods ...Command) Flag {
	f := base
	skip := len(mods) > 0
	for _, m := range mods {
		mf := m.Flags()
		if mf.Has(FlagZeroLockTimeout) {
			f |= FlagZeroLockTimeout
		}
		if !mf.Has(FlagSkipLocking) {
			skip = false
		}
	}
	if skip {
		f |= FlagSkipLocking
	}
	return f
}

// Has 报告是否包含 x 的全部位。
func (f Flag) Has(x Flag) bool {
	return f&x == x
}

// String 返回以 "|" 连接的标志名；空集合返回 "NONE"。
func (f Flag) String() string {
	if f == 0 {
		return "NONE"
	}
	var parts []string
	for _, n := range flagNames {
		if f.Has(n.f) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
