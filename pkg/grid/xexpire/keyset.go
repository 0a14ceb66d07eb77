package xexpire

import (
	"sync"
	"sync/atomic"
)

// KeySet 是并发安全的 key 集合，插入为原子的“不存在才插入”。
// 零值可用。
type KeySet struct {
	m sync.Map // key -> struct{}
	n atomic.Int64
}

// TryAdd 在 key 不存在时插入并返回 true。
func (s *KeySet) TryAdd(key string) bool {
	if _, loaded := s.m.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	s.n.Add(1)
	return true
}

// Remove 删除 key，返回 key 是否存在。
func (s *KeySet) Remove(key string) bool {
	if _, ok := s.m.LoadAndDelete(key); ok {
		s.n.Add(-1)
		return true
	}
	return false
}

// Contains 报告 key 是否存在。
func (s *KeySet) Contains(key string) bool {
	_, ok := s.m.Load(key)
	return ok
}

// Len 返回元素数量（近似值，并发修改时可能短暂不一致）。
func (s *KeySet) Len() int {
	return int(s.n.Load())
}

// RefSet 是带引用计数的 key 集合。同一 key 被 Add 多次时，
// 需要同样次数的 Done 才会移除。零值可用。
type RefSet struct {
	m sync.Map // key -> *atomic.Int64
}

// Add 为 key 增加一次引用。
func (s *RefSet) Add(key string) {
	for {
		v, _ := s.m.LoadOrStore(key, new(atomic.Int64))
		c := v.(*atomic.Int64)
		for {
			n := c.Load()
			if n < 0 {
				// 计数器已被回收，重新取
				break
			}
			if c.CompareAndSwap(n, n+1) {
				return
			}
		}
	}
}

// Done 为 key 减少一次引用，归零时移除。对不存在的 key 无操作。
func (s *RefSet) Done(key string) {
	v, ok := s.m.Load(key)
	if !ok {
		return
	}
	c := v.(*atomic.Int64)
	for {
		n := c.Load()
		if n <= 0 {
			return
		}
		if n > 1 {
			if c.CompareAndSwap(n, n-1) {
				return
			}
			continue
		}
		// 1 -> -1 标记回收，之后 Add 会换用新计数器
		if c.CompareAndSwap(1, -1) {
			s.m.CompareAndDelete(key, c)
			return
		}
	}
}

// Contains 报告 key 是否有引用。
func (s *RefSet) Contains(key string) bool {
	v, ok := s.m.Load(key)
	return ok && v.(*atomic.Int64).Load() > 0
}
