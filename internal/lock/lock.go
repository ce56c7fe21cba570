package lock

import (
	"context"
	"fmt"
	"sync"

	"kitchenpos/backend/internal/domain"
)

// Unlock releases a held owner lock. It is safe to call once.
type Unlock func()

// OwnerLocker serializes work on a single (link kind, owner) pair.
type OwnerLocker interface {
	Lock(ctx context.Context, kind domain.LinkKind, ownerID int64) (Unlock, error)
}

func key(kind domain.LinkKind, ownerID int64) string {
	return fmt.Sprintf("kitchenpos:lock:%s:%d", kind, ownerID)
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and
// dropped once nobody holds or waits for them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, kind domain.LinkKind, ownerID int64) (Unlock, error) {
	k := key(kind, ownerID)

	l.mu.Lock()
	entry, ok := l.entries[k]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[k] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(k, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(k, entry)
		})
	}, nil
}

func (l *LocalLocker) release(k string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, k)
	}
}
