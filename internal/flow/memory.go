package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"WalletChat/pkg/logger"
)

// MemoryStore 在进程内保存流程。超时的流程保留 retention 时长，以便用户回来时
// 仍能收到超时提示，之后由 Sweep 回收。
type MemoryStore struct {
	mu        sync.Mutex
	states    map[string]State
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore 创建内存流程存储。
func NewMemoryStore(timeout, retention time.Duration) *MemoryStore {
	return &MemoryStore{
		states:    make(map[string]State),
		timeout:   timeout,
		retention: retention,
		now:       time.Now,
	}
}

// Get 实现 Store 接口。
func (s *MemoryStore) Get(_ context.Context, userID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.states[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &stored, nil
}

// Create 实现 Store 接口。
func (s *MemoryStore) Create(_ context.Context, state *State) error {
	if err := validateState(state); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[state.UserID]; exists {
		return ErrActive
	}
	s.states[state.UserID] = *state
	return nil
}

// Save 实现 Store 接口。
func (s *MemoryStore) Save(_ context.Context, state *State) error {
	if err := validateState(state); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.states[state.UserID]; !ok || current.ID != state.ID {
		return ErrNotFound
	}
	s.states[state.UserID] = *state
	return nil
}

// Delete 实现 Store 接口。
func (s *MemoryStore) Delete(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[userID]; !ok {
		return false, nil
	}
	delete(s.states, userID)
	return true, nil
}

// Len 返回当前保存的流程数量。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Sweep 删除创建时间早于 timeout+retention 的流程，返回删除数量。
func (s *MemoryStore) Sweep(now time.Time) int {
	horizon := s.timeout + s.retention
	if horizon <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, state := range s.states {
		if now.Sub(state.StartTime) > horizon {
			delete(s.states, userID)
			removed++
		}
	}
	return removed
}

// Run 周期性执行 Sweep，直到 ctx 结束。
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logger.Named("flow")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				log.Debug("回收过期流程", slog.Int("count", n))
			}
		}
	}
}

// Close 实现 Store 接口。
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
