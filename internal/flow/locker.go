package flow

import "sync"

// Locker 为每个用户提供独立的互斥锁，同一用户的消息串行处理，不同用户互不阻塞。
// 没有持有者的锁会立即从表中移除。
type Locker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker 创建空的用户锁表。
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*userLock)}
}

// Lock 获取 userID 的锁，返回释放函数。
func (l *Locker) Lock(userID string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, userID)
			}
			l.mu.Unlock()
		})
	}
}

// size 返回当前锁表中的用户数量。
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
