package locks

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// Locker serializes work on a key. The returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

var ErrEmptyKey = errors.New("lock key is empty")

// UserKey guards a user's balance and conversation.
func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// PaymentKey guards the completed transition of a payment.
func PaymentKey(paymentID string) string {
	return "payment:" + paymentID
}

type keyEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			m.release(key, entry)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, entry *keyEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
}

func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
