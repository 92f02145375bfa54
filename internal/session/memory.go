package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 使用进程内 map 保存会话，进程重启后会话丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore 创建内存会话存储。ttl 为 0 表示不过期。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get 实现 Store 接口。
func (s *MemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	s.mu.RLock()
	stored, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(stored) {
		s.mu.Lock()
		if current, ok := s.sessions[userID]; ok && s.expired(current) {
			delete(s.sessions, userID)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	clone := stored
	return &clone, nil
}

// Put 实现 Store 接口。
func (s *MemoryStore) Put(_ context.Context, sess *Session) error {
	if err := validate(sess); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *sess
	if stored.AuthenticatedAt.IsZero() {
		stored.AuthenticatedAt = s.now()
	}
	s.sessions[sess.UserID] = stored
	return nil
}

// Delete 实现 Store 接口。
func (s *MemoryStore) Delete(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[userID]
	if !ok {
		return false, nil
	}
	delete(s.sessions, userID)
	return !s.expired(stored), nil
}

// Close 实现 Store 接口。
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(sess Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.AuthenticatedAt) > s.ttl
}

var _ Store = (*MemoryStore)(nil)
