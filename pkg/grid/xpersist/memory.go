package xpersist

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStoreOption 定义 MemoryStore 可选配置。
type MemoryStoreOption func(*MemoryStore)

// WithShared 将存储标记为共享存储。
func WithShared(shared bool) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.chars.Shared = shared
	}
}

// WithReadOnly 将存储标记为只读。
func WithReadOnly(readOnly bool) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.chars.ReadOnly = readOnly
	}
}

// MemoryStore 是进程内存储，主要用于测试与单机部署。
type MemoryStore struct {
	name  string
	chars Characteristics

	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore(name string, opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{name: name, rows: make(map[string]Row)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Characteristics() Characteristics { return s.chars }

func (s *MemoryStore) Load(_ context.Context, key string) (*Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	r.Value = slices.Clone(r.Value)
	return &r, nil
}

func (s *MemoryStore) Write(_ context.Context, row Row) error {
	row.Value = slices.Clone(row.Value)
	s.mu.Lock()
	s.rows[row.Key] = row
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[key]
	delete(s.rows, key)
	return ok, nil
}

// PurgeExpired 删除过期行并给出完整行。回调在锁外执行。
func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time, fn func(PurgedRow)) error {
	s.mu.Lock()
	var purged []Row
	for k, r := range s.rows {
		if r.Metadata.IsExpired(now) {
			purged = append(purged, r)
			delete(s.rows, k)
		}
	}
	s.mu.Unlock()

	for _, r := range purged {
		if err := ctx.Err(); err != nil {
			return err
		}
		md := r.Metadata
		fn(PurgedRow{Key: r.Key, Value: r.Value, Metadata: &md})
	}
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	clear(s.rows)
	s.mu.Unlock()
	return nil
}

// Len 返回行数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
