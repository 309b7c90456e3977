package memory

import (
	"context"
	"sync"

	"github.com/loykin/gestures/internal/store"
)

// DB is an in-process store.Store. Contents are lost when the process exits.
type DB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func New() *DB { return &DB{data: make(map[string][]byte)} }

func (m *DB) EnsureSchema(_ context.Context) error { return nil }

func (m *DB) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *DB) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *DB) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *DB) Close() error { return nil }
