package events

import (
	"context"
	"sync"
)

// Recorder 在内存中保留最近的事件，供调试接口与测试读取。
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder 创建内存事件记录器，limit 不大于 0 时默认保留 256 条。
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 256
	}
	return &Recorder{limit: limit}
}

// Publish 实现 Publisher 接口。
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if overflow := len(r.events) - r.limit; overflow > 0 {
		r.events = append([]Event(nil), r.events[overflow:]...)
	}
	return nil
}

// Events 返回已记录事件的副本。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types 返回已记录事件的类型序列。
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Close 实现 Publisher 接口。
func (r *Recorder) Close() error { return nil }
