package lock

import (
	"context"
	"sync"
)

// Locker hands out non-blocking exclusive locks by key. ok is false when
// another holder owns the key; unlock must be called exactly once when ok.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// MemoryLocker serializes holders within one process.
type MemoryLocker struct {
	held  map[string]struct{}
	mutex sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]struct{}),
	}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.held[key]; exists {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mutex.Lock()
			delete(l.held, key)
			l.mutex.Unlock()
		})
	}, true, nil
}
