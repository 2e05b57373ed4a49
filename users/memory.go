package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 内存用户表，供 CLI 与测试使用。
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore 创建内存存储，可预置用户。
func NewMemoryStore(seed ...User) *MemoryStore {
	s := &MemoryStore{users: make(map[string]User, len(seed))}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

// GetUserByID 实现 Store
func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound(id)
	}
	return &u, nil
}

// Upsert 新增或覆盖用户
func (s *MemoryStore) Upsert(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

// List 按 ID 排序返回全部用户
func (s *MemoryStore) List(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
